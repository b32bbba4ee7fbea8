package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Conversly/messenger-relay/internal/core"
)

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Processor runs one envelope through the pipeline.
type Processor interface {
	Process(ctx context.Context, env core.Envelope) (core.Outcome, error)
}

// Service turns direct-processing requests into pipeline envelopes.
type Service struct {
	processor Processor
}

func NewService(processor Processor) *Service {
	return &Service{processor: processor}
}

// Process validates req, runs it through the pipeline and describes the outcome.
func (s *Service) Process(ctx context.Context, req *ProcessMessageRequest) (*ProcessMessageResponse, error) {
	env, err := toEnvelope(req)
	if err != nil {
		return nil, err
	}

	out, err := s.processor.Process(ctx, env)
	if err != nil {
		return nil, err
	}

	resp := &ProcessMessageResponse{ConversationID: out.ConversationID}
	switch out.Status {
	case core.OutcomeProcessed:
		sent := out.AutoReplySent
		resp.Success = true
		resp.Message = "Message processed"
		resp.AutoReplyWasSent = &sent
	case core.OutcomeDuplicate:
		resp.Success = true
		resp.Message = "Duplicate message ignored"
	case core.OutcomeSkipped:
		resp.Message = "Channel not found or disabled"
	default:
		resp.Message = "Message processing failed"
	}
	return resp, nil
}

func toEnvelope(req *ProcessMessageRequest) (core.Envelope, error) {
	if strings.TrimSpace(req.MessageText) == "" && req.ImageURL == "" {
		return core.Envelope{}, fmt.Errorf("%w: messageText or imageUrl is required", ErrInvalidRequest)
	}

	role, err := parseSenderType(req.SenderType, req.IsEcho)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	platform := core.Platform(strings.ToLower(req.Platform))
	if platform != "" && !platform.Valid() {
		return core.Envelope{}, fmt.Errorf("%w: unsupported platform %q", ErrInvalidRequest, req.Platform)
	}

	return core.Envelope{
		Platform:          platform,
		ChannelID:         req.PageID,
		SenderID:          req.SenderID,
		Text:              req.MessageText,
		PlatformMessageID: req.MessageID,
		Timestamp:         req.Timestamp.Time,
		MediaURL:          req.ImageURL,
		SenderRole:        role,
		IsEcho:            req.IsEcho,
	}, nil
}

func parseSenderType(senderType string, isEcho bool) (core.SenderRole, error) {
	switch strings.ToLower(senderType) {
	case "":
		if isEcho {
			return core.RoleBusiness, nil
		}
		return core.RoleCustomer, nil
	case "customer", "user":
		if isEcho {
			return "", fmt.Errorf("senderType %q contradicts isEcho", senderType)
		}
		return core.RoleCustomer, nil
	case "business", "page", "agent":
		return core.RoleBusiness, nil
	case "system":
		return core.RoleSystem, nil
	default:
		return "", fmt.Errorf("unknown senderType %q", senderType)
	}
}
