package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// fcmMaxTokens is the multicast limit of the FCM API.
const fcmMaxTokens = 500

// FCMConfig configures the Firebase client.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
}

// multicastSender is the subset of *messaging.Client the gateway uses.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMGateway sends through Firebase Cloud Messaging.
type FCMGateway struct {
	client multicastSender
}

// NewFCMGateway builds the Firebase app and messaging client eagerly so
// configuration errors surface at startup.
func NewFCMGateway(ctx context.Context, cfg FCMConfig) (*FCMGateway, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("fcm credentials file is required")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID},
		option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	logger.Info("FCM gateway initialized", zap.String("project_id", cfg.ProjectID))
	return &FCMGateway{client: client}, nil
}

// SendMulticast implements Gateway. Token lists above the FCM limit are sent
// in consecutive batches; results keep the input order.
func (g *FCMGateway) SendMulticast(ctx context.Context, msg Message, tokens []string) (BatchResult, error) {
	var out BatchResult
	for start := 0; start < len(tokens); start += fcmMaxTokens {
		end := min(start+fcmMaxTokens, len(tokens))
		chunk := tokens[start:end]

		resp, err := g.client.SendEachForMulticast(ctx, buildMulticast(msg, chunk))
		if err != nil {
			return out, fmt.Errorf("fcm multicast: %w", err)
		}
		for i, r := range resp.Responses {
			res := TokenResult{Token: chunk[i], MessageID: r.MessageID}
			if !r.Success {
				res.Err = r.Error
				res.Code = classify(r.Error)
			}
			out.Results = append(out.Results, res)
		}
		out.SuccessCount += resp.SuccessCount
		out.FailureCount += resp.FailureCount
	}
	return out, nil
}

// DataClickAction is the data key carrying the action URL.
const DataClickAction = "click_action"

func buildMulticast(msg Message, tokens []string) *messaging.MulticastMessage {
	m := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
	}
	if msg.ActionURL != "" {
		m.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: msg.ActionURL},
		}
		m.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{ClickAction: msg.ActionURL},
		}
		// APNs has no link field; iOS clients read it from the data payload.
		data := make(map[string]string, len(msg.Data)+1)
		for k, v := range msg.Data {
			data[k] = v
		}
		data[DataClickAction] = msg.ActionURL
		m.Data = data
	}
	return m
}

func classify(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case messaging.IsUnregistered(err):
		return CodeUnregistered
	case messaging.IsInvalidArgument(err):
		return CodeInvalidArgument
	case messaging.IsSenderIDMismatch(err):
		return CodeSenderIDMismatch
	case messaging.IsQuotaExceeded(err):
		return CodeQuotaExceeded
	case messaging.IsUnavailable(err):
		return CodeUnavailable
	case messaging.IsInternal(err):
		return CodeInternal
	default:
		return CodeUnknown
	}
}
