package handler

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"meetinghub/dto"
	"meetinghub/service"
)

type ServiceDependencies struct {
	Pipeline service.Pipeline
}

func ProcessMeetingHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.ProcessMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal processing message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("meeting_id", message.MeetingID.String()).
		Msg("received processing message")

	return deps.Pipeline.Process(ctx, message)
}
