package wshandler

import (
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	ws "github.com/Temutjin2k/ride-tracking-system/pkg/wsHub"
)

func errorResponse(conn *ws.Conn, tripID string, message string) error {
	env, err := models.NewEnvelope(types.EventError, tripID, models.ErrorPayload{Message: message})
	if err != nil {
		return err
	}
	return conn.Send(env)
}
