package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

func newTestGuard() (*Guard, *memory.IdempotencyRepo) {
	repo := memory.NewIdempotencyRepo()
	return NewGuard(repo, Config{}, zerolog.Nop()), repo
}

func saleClaim(body string) Claim {
	return Claim{
		Key:         "sale-55",
		BusinessID:  "biz-1",
		ActorID:     "user-1",
		Endpoint:    "stock.mutate",
		RequestHash: Fingerprint([]byte(body)),
	}
}

func countingOp(n *int32, body string) Operation {
	return func(context.Context) (Response, error) {
		atomic.AddInt32(n, 1)
		return Response{StatusCode: 201, ContentType: "application/json", Body: []byte(body)}, nil
	}
}

// ---------------------------------------------------------------------------
// Primera ejecución y reproducción
// ---------------------------------------------------------------------------

func TestExecute_SegundaLlamadaReproduceRespuesta(t *testing.T) {
	g, repo := newTestGuard()
	ctx := context.Background()
	var calls int32

	first, err := g.Execute(ctx, saleClaim(`{"qty":-5}`), countingOp(&calls, `{"new_balance":"70"}`))
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := g.Execute(ctx, saleClaim(`{"qty":-5}`), countingOp(&calls, `{"new_balance":"65"}`))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body, "la respuesta reproducida es byte a byte la original")
	assert.Equal(t, 201, second.StatusCode)
	assert.Equal(t, int32(1), calls)

	rec, err := repo.Get(ctx, "biz-1", "sale-55")
	require.NoError(t, err)
	assert.Equal(t, entity.IdempotencyCompleted, rec.Status)
}

func TestExecute_SinLlaveNoDeduplica(t *testing.T) {
	g, _ := newTestGuard()
	var calls int32
	for i := 0; i < 2; i++ {
		res, err := g.Execute(context.Background(), Claim{BusinessID: "biz-1"}, countingOp(&calls, `{}`))
		require.NoError(t, err)
		assert.False(t, res.Replayed)
	}
	assert.Equal(t, int32(2), calls)
}

func TestExecute_SinNegocioEsNoAutorizado(t *testing.T) {
	g, _ := newTestGuard()
	var calls int32
	_, err := g.Execute(context.Background(), Claim{Key: "k"}, countingOp(&calls, `{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, calls)
}

// ---------------------------------------------------------------------------
// Concurrencia
// ---------------------------------------------------------------------------

func TestExecute_LlamadasConcurrentesEjecutanUnaVez(t *testing.T) {
	g, _ := newTestGuard()
	var calls int32
	release := make(chan struct{})
	op := func(context.Context) (Response, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Response{StatusCode: 201, Body: []byte(`{}`)}, nil
	}

	const n = 10
	var (
		wg         sync.WaitGroup
		ok         int32
		inFlight   int32
		unexpected int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Execute(context.Background(), saleClaim(`{}`), op)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, domain.ErrConcurrentRequest):
				atomic.AddInt32(&inFlight, 1)
			default:
				atomic.AddInt32(&unexpected, 1)
			}
		}()
	}

	// Los perdedores vuelven de inmediato con 429; el ganador espera a release.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == n-1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls, "la operación corre exactamente una vez")
	assert.Equal(t, int32(1), ok)
	assert.Zero(t, unexpected)
}

func TestExecute_ReclamoRecienteDevuelveRetryAfter(t *testing.T) {
	g, repo := newTestGuard()
	now := time.Now().UTC()
	repo.Put(entity.IdempotencyRecord{
		ID: "r-1", Key: "sale-55", BusinessID: "biz-1", Endpoint: "stock.mutate",
		Status: entity.IdempotencyProcessing, CreatedAt: now.Add(-5 * time.Second), ExpiresAt: now.Add(time.Hour),
	})
	var calls int32

	_, err := g.Execute(context.Background(), saleClaim(`{}`), countingOp(&calls, `{}`))
	require.ErrorIs(t, err, domain.ErrConcurrentRequest)
	var cre *domain.ConcurrentRequestError
	require.ErrorAs(t, err, &cre)
	assert.Greater(t, cre.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, cre.RetryAfter, DefaultStaleAfter)
	assert.Zero(t, calls)
}

// ---------------------------------------------------------------------------
// Recuperación: reclamos abandonados, fallidos y vencidos
// ---------------------------------------------------------------------------

func TestExecute_ReclamoAbandonadoSePurgaYEjecuta(t *testing.T) {
	g, repo := newTestGuard()
	now := time.Now().UTC()
	repo.Put(entity.IdempotencyRecord{
		ID: "r-old", Key: "sale-55", BusinessID: "biz-1", Endpoint: "stock.mutate",
		Status: entity.IdempotencyProcessing, CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour),
	})
	var calls int32

	res, err := g.Execute(context.Background(), saleClaim(`{}`), countingOp(&calls, `{"ok":true}`))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, int32(1), calls)

	rec, err := repo.Get(context.Background(), "biz-1", "sale-55")
	require.NoError(t, err)
	assert.NotEqual(t, "r-old", rec.ID)
	assert.Equal(t, entity.IdempotencyCompleted, rec.Status)
}

func TestExecute_FalloPermiteReintentar(t *testing.T) {
	g, repo := newTestGuard()
	ctx := context.Background()
	errDB := domain.TransactionFailure("mutar stock", errors.New("conexión perdida"))

	_, err := g.Execute(ctx, saleClaim(`{}`), func(context.Context) (Response, error) {
		return Response{}, errDB
	})
	require.ErrorIs(t, err, domain.ErrTransactionFailure)

	rec, err := repo.Get(ctx, "biz-1", "sale-55")
	require.NoError(t, err)
	assert.Equal(t, entity.IdempotencyFailed, rec.Status)

	var calls int32
	res, err := g.Execute(ctx, saleClaim(`{}`), countingOp(&calls, `{}`))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, int32(1), calls)
}

func TestExecute_PanicMarcaFallido(t *testing.T) {
	g, repo := newTestGuard()
	assert.Panics(t, func() {
		_, _ = g.Execute(context.Background(), saleClaim(`{}`), func(context.Context) (Response, error) {
			panic("boom")
		})
	})
	rec, err := repo.Get(context.Background(), "biz-1", "sale-55")
	require.NoError(t, err)
	assert.Equal(t, entity.IdempotencyFailed, rec.Status)
}

func TestExecute_RespuestaVencidaSeReejecuta(t *testing.T) {
	g, repo := newTestGuard()
	now := time.Now().UTC()
	repo.Put(entity.IdempotencyRecord{
		ID: "r-1", Key: "sale-55", BusinessID: "biz-1", Endpoint: "stock.mutate",
		Status: entity.IdempotencyCompleted, ResponseStatusCode: 201, ResponseBody: []byte(`{"old":true}`),
		CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	})
	var calls int32

	res, err := g.Execute(context.Background(), saleClaim(`{}`), countingOp(&calls, `{"new":true}`))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, `{"new":true}`, string(res.Body))
	assert.Equal(t, int32(1), calls)
}

// ---------------------------------------------------------------------------
// Reutilización de llave
// ---------------------------------------------------------------------------

func TestExecute_MismaLlaveOtroCuerpo(t *testing.T) {
	g, _ := newTestGuard()
	var calls int32
	_, err := g.Execute(context.Background(), saleClaim(`{"qty":-5}`), countingOp(&calls, `{}`))
	require.NoError(t, err)

	_, err = g.Execute(context.Background(), saleClaim(`{"qty":-50}`), countingOp(&calls, `{}`))
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReuse)
	assert.Equal(t, int32(1), calls)
}

func TestExecute_MismaLlaveOtroEndpoint(t *testing.T) {
	g, _ := newTestGuard()
	var calls int32
	_, err := g.Execute(context.Background(), saleClaim(`{}`), countingOp(&calls, `{}`))
	require.NoError(t, err)

	other := saleClaim(`{}`)
	other.Endpoint = "stock.transfer"
	_, err = g.Execute(context.Background(), other, countingOp(&calls, `{}`))
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReuse)
}

// ---------------------------------------------------------------------------
// Ciclo acotado
// ---------------------------------------------------------------------------

// flappingRepo simula un competidor que siempre vuelve a reclamar la llave entre purga y reintento.
type flappingRepo struct {
	*memory.IdempotencyRepo
	inserts int32
}

func (r *flappingRepo) Insert(context.Context, *entity.IdempotencyRecord) error {
	atomic.AddInt32(&r.inserts, 1)
	return domain.ErrDuplicate
}

func (r *flappingRepo) Get(context.Context, string, string) (*entity.IdempotencyRecord, error) {
	now := time.Now().UTC()
	return &entity.IdempotencyRecord{
		ID: "r-x", Key: "sale-55", BusinessID: "biz-1", Endpoint: "stock.mutate",
		Status: entity.IdempotencyFailed, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}, nil
}

func TestExecute_CicloDeReclamoAcotado(t *testing.T) {
	repo := &flappingRepo{IdempotencyRepo: memory.NewIdempotencyRepo()}
	g := NewGuard(repo, Config{MaxAttempts: 3}, zerolog.Nop())
	var calls int32

	_, err := g.Execute(context.Background(), saleClaim(`{}`), countingOp(&calls, `{}`))
	assert.ErrorIs(t, err, domain.ErrConcurrentRequest)
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.inserts))
	assert.Zero(t, calls)
}

// ---------------------------------------------------------------------------
// Sweeper
// ---------------------------------------------------------------------------

func TestSweeper_PurgaVencidos(t *testing.T) {
	repo := memory.NewIdempotencyRepo()
	now := time.Now().UTC()
	repo.Put(entity.IdempotencyRecord{ID: "a", Key: "a", BusinessID: "biz-1", Status: entity.IdempotencyCompleted, ExpiresAt: now.Add(-time.Minute)})
	repo.Put(entity.IdempotencyRecord{ID: "b", Key: "b", BusinessID: "biz-1", Status: entity.IdempotencyCompleted, ExpiresAt: now.Add(time.Hour)})

	n, err := NewSweeper(repo, time.Minute, zerolog.Nop()).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := repo.Get(context.Background(), "biz-1", "a")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := repo.Get(context.Background(), "biz-1", "b")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
