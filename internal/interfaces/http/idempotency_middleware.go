package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/application/idempotency"
)

// Cabeceras del protocolo de idempotencia.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// errNotCacheable la respuesta del handler no es 2xx: ya está escrita y el reclamo queda "failed".
var errNotCacheable = errors.New("respuesta no cacheable")

// Idempotent envuelve el handler siguiente con el guard. Sin cabecera Idempotency-Key el handler
// corre sin deduplicación. Solo las respuestas 2xx se guardan para reproducirse.
func Idempotent(guard *idempotency.Guard, endpoint string, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderIdempotencyKey)
		if guard == nil || key == "" {
			return c.Next()
		}
		actor := GetActor(c)
		claim := idempotency.Claim{
			Key:         key,
			BusinessID:  actor.BusinessID,
			ActorID:     actor.ID,
			Endpoint:    endpoint,
			RequestHash: idempotency.Fingerprint([]byte(c.Path()), c.Body()),
		}

		res, err := guard.Execute(c.UserContext(), claim, func(ctx context.Context) (idempotency.Response, error) {
			c.SetUserContext(ctx)
			if err := c.Next(); err != nil {
				return idempotency.Response{}, err
			}
			status := c.Response().StatusCode()
			if status < 200 || status >= 300 {
				return idempotency.Response{}, errNotCacheable
			}
			return idempotency.Response{
				StatusCode:  status,
				ContentType: string(c.Response().Header.ContentType()),
				Body:        append([]byte(nil), c.Response().Body()...),
			}, nil
		})
		switch {
		case errors.Is(err, errNotCacheable):
			return nil
		case err != nil:
			return respondError(c, log, err)
		case res.Replayed:
			c.Set(HeaderReplayed, "true")
			if res.ContentType != "" {
				c.Set(fiber.HeaderContentType, res.ContentType)
			}
			return c.Status(res.StatusCode).Send(res.Body)
		default:
			return nil
		}
	}
}
