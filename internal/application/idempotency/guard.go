// Package idempotency implementa el protocolo claim-first que deduplica solicitudes reintentadas:
// la llave se reclama con un INSERT atómico antes de cualquier efecto secundario.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Valores por defecto del protocolo.
const (
	DefaultStaleAfter  = 30 * time.Second
	DefaultTTL         = 24 * time.Hour
	DefaultMaxAttempts = 3
)

// Config parámetros del guard.
type Config struct {
	StaleAfter  time.Duration // un reclamo "processing" más viejo se considera abandonado
	TTL         time.Duration // vigencia de registros completed/failed
	MaxAttempts int           // tope del ciclo de reclamo (evita tormentas de reintento)
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Claim identifica la solicitud lógica. La llave es única por negocio.
type Claim struct {
	Key         string
	BusinessID  string
	ActorID     string
	Endpoint    string
	RequestHash string
}

// Response respuesta serializada que se guarda y se reproduce tal cual.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Result respuesta entregada al caller; Replayed indica que vino de la caché.
type Result struct {
	Response
	Replayed bool
}

// Operation efecto protegido por el guard.
type Operation func(ctx context.Context) (Response, error)

// Guard deduplica operaciones por llave de idempotencia.
type Guard struct {
	repo repository.IdempotencyRepository
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time
}

// NewGuard construye el guard sobre el repositorio (atado al pool, no a una tx).
func NewGuard(repo repository.IdempotencyRepository, cfg Config, log zerolog.Logger) *Guard {
	return &Guard{repo: repo, cfg: cfg.withDefaults(), log: log, now: time.Now}
}

// Fingerprint huella de las partes de la solicitud (ruta, cuerpo). Cada parte va
// precedida de su longitud para que ("ab","c") y ("a","bc") no coincidan.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Execute ejecuta op a lo sumo una vez por llave:
//   - reclamo insertado: ejecuta; éxito → completed con la respuesta, error → failed y se propaga.
//   - completed: devuelve la respuesta guardada sin ejecutar.
//   - failed o expirado: borra el registro y vuelve a reclamar.
//   - processing reciente: *domain.ConcurrentRequestError, sin ejecutar.
//   - processing viejo (abandonado): borra y vuelve a reclamar.
//
// Sin llave, la deduplicación queda desactivada y op se ejecuta directamente.
func (g *Guard) Execute(ctx context.Context, claim Claim, op Operation) (*Result, error) {
	if claim.Key == "" {
		resp, err := op(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp}, nil
	}
	if claim.BusinessID == "" {
		return nil, domain.ErrUnauthorized
	}

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		now := g.now().UTC()
		rec := &entity.IdempotencyRecord{
			ID:          uuid.New().String(),
			Key:         claim.Key,
			BusinessID:  claim.BusinessID,
			ActorID:     claim.ActorID,
			Endpoint:    claim.Endpoint,
			RequestHash: claim.RequestHash,
			Status:      entity.IdempotencyProcessing,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(g.cfg.TTL),
		}
		err := g.repo.Insert(ctx, rec)
		if err == nil {
			return g.runClaimed(ctx, rec, op)
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("reclamar llave de idempotencia: %w", err)
		}

		existing, err := g.repo.Get(ctx, claim.BusinessID, claim.Key)
		if err != nil {
			return nil, fmt.Errorf("leer llave de idempotencia: %w", err)
		}
		if existing == nil {
			// Borrado entre el INSERT y la lectura: reintentar el reclamo.
			continue
		}
		if mismatched(existing, claim) {
			return nil, domain.ErrIdempotencyKeyReuse
		}

		switch {
		case existing.Status == entity.IdempotencyCompleted && !existing.Expired(now):
			return &Result{
				Response: Response{
					StatusCode:  existing.ResponseStatusCode,
					ContentType: existing.ResponseContentType,
					Body:        existing.ResponseBody,
				},
				Replayed: true,
			}, nil

		case existing.Status == entity.IdempotencyProcessing:
			age := now.Sub(existing.CreatedAt)
			if age < g.cfg.StaleAfter {
				return nil, &domain.ConcurrentRequestError{RetryAfter: g.cfg.StaleAfter - age}
			}
			g.log.Warn().
				Err(domain.ErrStaleClaimRecovered).
				Str("key", claim.Key).
				Str("business_id", claim.BusinessID).
				Str("endpoint", existing.Endpoint).
				Dur("age", age).
				Msg("reclamo abandonado; se purga y se reintenta")
			if err := g.purge(ctx, existing); err != nil {
				return nil, err
			}

		default:
			// failed, o completed vencido: el registro ya no protege nada.
			if err := g.purge(ctx, existing); err != nil {
				return nil, err
			}
		}
	}

	return nil, &domain.ConcurrentRequestError{RetryAfter: g.cfg.StaleAfter}
}

func (g *Guard) runClaimed(ctx context.Context, rec *entity.IdempotencyRecord, op Operation) (*Result, error) {
	// Las escrituras de estado no dependen de que el cliente siga conectado.
	bg := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			g.markFailed(bg, rec)
			panic(r)
		}
	}()

	resp, opErr := op(ctx)
	if opErr != nil {
		g.markFailed(bg, rec)
		return nil, opErr
	}

	if err := g.repo.Complete(bg, rec.ID, resp.StatusCode, resp.ContentType, resp.Body, g.now().UTC()); err != nil {
		// La operación ya se confirmó; se informa éxito aunque la caché no quede guardada.
		g.log.Error().Err(err).Str("key", rec.Key).Str("business_id", rec.BusinessID).
			Msg("no se pudo marcar la llave como completada")
	}
	return &Result{Response: resp}, nil
}

func (g *Guard) markFailed(ctx context.Context, rec *entity.IdempotencyRecord) {
	if err := g.repo.Fail(ctx, rec.ID, g.now().UTC()); err != nil {
		g.log.Error().Err(err).Str("key", rec.Key).Str("business_id", rec.BusinessID).
			Msg("no se pudo marcar la llave como fallida")
	}
}

// purge borra solo el registro observado: si otro caller ya lo reemplazó, el borrado no lo toca.
func (g *Guard) purge(ctx context.Context, rec *entity.IdempotencyRecord) error {
	if _, err := g.repo.DeleteByID(ctx, rec.ID); err != nil {
		return fmt.Errorf("purgar llave de idempotencia: %w", err)
	}
	return nil
}

func mismatched(existing *entity.IdempotencyRecord, claim Claim) bool {
	if existing.Endpoint != claim.Endpoint {
		return true
	}
	return existing.RequestHash != "" && claim.RequestHash != "" && existing.RequestHash != claim.RequestHash
}
