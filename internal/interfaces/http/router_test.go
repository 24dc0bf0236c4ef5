package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/hooks"
	"github.com/jhoicas/stock-ledger/internal/application/idempotency"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/audit"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/authz"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/stock-ledger/pkg/jwt"
)

type apiFixture struct {
	app     *fiber.App
	idem    *memory.IdempotencyRepo
	admin   string
	manager string
	clerk   string
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log := zerolog.Nop()
	store := memory.NewStore()
	idem := memory.NewIdempotencyRepo()
	rec := audit.NewLogRecorder(log)
	dispatcher := hooks.NewDispatcher(log, time.Second)

	mutation := inventory.NewStockMutationService(
		store, store.Balances(), store.Ledger(), authz.RoleAuthorizer{}, rec, dispatcher,
		inventory.MutationConfig{LowStockThreshold: decimal.NewFromInt(5), TxTimeout: 5 * time.Second}, log,
	)
	corrections := inventory.NewCorrectionUseCase(
		store, store.Corrections(), store.Balances(), mutation, authz.RoleAuthorizer{}, rec, dispatcher, 5*time.Second, log,
	)
	guard := idempotency.NewGuard(idem, idempotency.Config{StaleAfter: 30 * time.Second, TTL: 24 * time.Hour, MaxAttempts: 3}, log)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Mutation:    mutation,
		Corrections: corrections,
		Guard:       guard,
		JWTSecret:   testJWTSecret,
		Log:         log,
	})

	return &apiFixture{
		app:  app,
		idem: idem,
		admin: signToken(t, pkgjwt.Identity{
			UserID: "u-admin", BusinessID: testBusinessID, DisplayName: "Admin", Role: entity.RoleAdmin,
		}),
		manager: signToken(t, pkgjwt.Identity{
			UserID: "u-manager", BusinessID: testBusinessID, Role: entity.RoleManager, Locations: []string{"loc-1"},
		}),
		clerk: signToken(t, pkgjwt.Identity{
			UserID: "u-clerk", BusinessID: testBusinessID, Role: entity.RoleClerk, Locations: []string{"loc-1"},
		}),
	}
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

func (f *apiFixture) call(t *testing.T, method, path, token, idemKey string, body any) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if idemKey != "" {
		req.Header.Set(apphttp.HeaderIdempotencyKey, idemKey)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return apiResponse{status: resp.StatusCode, header: resp.Header, body: raw}
}

func decode[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(r.body, &out), string(r.body))
	return out
}

func mutationBody(typ string, qty int64, ref string) map[string]any {
	return map[string]any{
		"type":           typ,
		"product_id":     "prod-1",
		"variation_id":   "var-1",
		"location_id":    "loc-1",
		"quantity":       strconv.FormatInt(qty, 10),
		"reference_type": "document",
		"reference_id":   ref,
	}
}

// seedOpening deja 100 unidades en loc-1.
func (f *apiFixture) seedOpening(t *testing.T) {
	t.Helper()
	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.admin, "", mutationBody("opening", 100, "inv-0"))
	require.Equal(t, http.StatusCreated, r.status, string(r.body))
}

func (f *apiFixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	r := f.call(t, http.MethodGet, "/api/stock/balance?variation_id=var-1&location_id=loc-1", f.admin, "", nil)
	require.Equal(t, http.StatusOK, r.status, string(r.body))
	return decode[dto.BalanceResponse](t, r).QuantityAvailable
}

// ──────────────────────────────────────────────────────────────────────────────
// Mutaciones
// ──────────────────────────────────────────────────────────────────────────────

func TestStockAPI_SinToken_Retorna401(t *testing.T) {
	f := newAPI(t)
	r := f.call(t, http.MethodGet, "/api/stock/balance?variation_id=var-1&location_id=loc-1", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestStockAPI_VentaReintentadaSeAplicaUnaVez(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	first := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-55", mutationBody("sale", -30, "sale-55"))
	require.Equal(t, http.StatusCreated, first.status, string(first.body))
	assert.Empty(t, first.header.Get(apphttp.HeaderReplayed))

	second := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-55", mutationBody("sale", -30, "sale-55"))
	require.Equal(t, http.StatusCreated, second.status)
	assert.Equal(t, "true", second.header.Get(apphttp.HeaderReplayed))
	assert.Equal(t, first.body, second.body, "la reproducción devuelve la respuesta original")

	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(70)))

	list := f.call(t, http.MethodGet, "/api/stock/transactions?reference_type=document&reference_id=sale-55", f.admin, "", nil)
	require.Equal(t, http.StatusOK, list.status)
	assert.Len(t, decode[dto.TransactionListResponse](t, list).Items, 1)
}

func TestStockAPI_VentaDisparadaEnParalelo_UnSoloAsiento(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	const n = 8
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		statuses = make([]int, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			r := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-55", mutationBody("sale", -30, "sale-55"))
			statuses[i] = r.status
		}(i)
	}
	close(start)
	wg.Wait()

	for _, st := range statuses {
		assert.Contains(t, []int{http.StatusCreated, http.StatusTooManyRequests}, st)
	}
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(70)), "la venta se aplica una sola vez")

	list := f.call(t, http.MethodGet, "/api/stock/transactions?reference_type=document&reference_id=sale-55", f.admin, "", nil)
	require.Equal(t, http.StatusOK, list.status)
	items := decode[dto.TransactionListResponse](t, list).Items
	require.Len(t, items, 1)
	assert.True(t, items[0].ResultingBalance.Equal(decimal.NewFromInt(70)))
}

func TestStockAPI_LlaveReutilizadaConOtroCuerpo_Retorna422(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-56", mutationBody("sale", -10, "sale-56"))
	require.Equal(t, http.StatusCreated, r.status)

	r = f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-56", mutationBody("sale", -20, "sale-56"))
	assert.Equal(t, http.StatusUnprocessableEntity, r.status)
	assert.Contains(t, string(r.body), "IDEMPOTENCY_KEY_REUSED")
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(90)))
}

func TestStockAPI_ReclamoEnCurso_Retorna429ConRetryAfter(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	body := mutationBody("sale", -5, "sale-57")
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	now := time.Now().UTC()
	f.idem.Put(entity.IdempotencyRecord{
		ID:          "rec-1",
		Key:         "sale-57",
		BusinessID:  testBusinessID,
		ActorID:     "u-clerk",
		Endpoint:    apphttp.EndpointStockMutate,
		RequestHash: idempotency.Fingerprint([]byte("/api/stock/mutations"), raw),
		Status:      entity.IdempotencyProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	})

	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-57", body)
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Contains(t, string(r.body), "REQUEST_IN_PROGRESS")
	secs, err := strconv.Atoi(r.header.Get(fiber.HeaderRetryAfter))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, secs, 1)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)), "no se ejecutó la operación")
}

func TestStockAPI_StockInsuficiente_Retorna409ConDetalle(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-58", mutationBody("sale", -130, "sale-58"))
	require.Equal(t, http.StatusConflict, r.status)
	out := decode[dto.InsufficientStockResponse](t, r)
	assert.Equal(t, "INSUFFICIENT_STOCK", out.Code)
	assert.True(t, out.Current.Equal(decimal.NewFromInt(100)))
	assert.True(t, out.Shortage.Equal(decimal.NewFromInt(30)))

	// Un fallo no queda cacheado: la misma llave puede reintentarse.
	retry := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "sale-58", mutationBody("sale", -130, "sale-58"))
	assert.Equal(t, http.StatusConflict, retry.status)
	assert.Empty(t, retry.header.Get(apphttp.HeaderReplayed))
}

func TestStockAPI_CantidadNoRepresentable_Retorna400(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	for _, qty := range []string{"-0.00004", "-10000000000000000"} {
		body := mutationBody("sale", -1, "sale-"+qty)
		body["quantity"] = qty
		r := f.call(t, http.MethodPost, "/api/stock/mutations", f.admin, "", body)
		assert.Equal(t, http.StatusBadRequest, r.status, qty)
	}
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)))
}

func TestStockAPI_ClerkFueraDeSuUbicacion_Retorna403(t *testing.T) {
	f := newAPI(t)
	body := mutationBody("purchase_receipt", 10, "po-1")
	body["location_id"] = "loc-9"
	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "", body)
	assert.Equal(t, http.StatusForbidden, r.status)
}

func TestStockAPI_CuerpoInvalido_Retorna400(t *testing.T) {
	f := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stock/mutations", bytes.NewReader([]byte("{no-json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", f.admin)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.admin, "", mutationBody("sale", 0, "x"))
	assert.Equal(t, http.StatusBadRequest, r.status, "cantidad cero es inválida")
}

func TestStockAPI_TrasladoYConsultas(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	r := f.call(t, http.MethodPost, "/api/stock/transfers", f.admin, "tr-1", map[string]any{
		"product_id":       "prod-1",
		"variation_id":     "var-1",
		"from_location_id": "loc-1",
		"to_location_id":   "loc-2",
		"quantity":         "20",
	})
	require.Equal(t, http.StatusCreated, r.status, string(r.body))
	tr := decode[dto.TransferResponse](t, r)
	assert.True(t, tr.Out.NewBalance.Equal(decimal.NewFromInt(80)))
	assert.True(t, tr.In.NewBalance.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "loc-2", tr.In.LocationID)

	av := f.call(t, http.MethodGet, "/api/stock/availability?variation_id=var-1&location_id=loc-1&required=90", f.clerk, "", nil)
	require.Equal(t, http.StatusOK, av.status)
	avail := decode[dto.AvailabilityResponse](t, av)
	assert.False(t, avail.Available)
	assert.True(t, avail.Shortage.Equal(decimal.NewFromInt(10)))

	bad := f.call(t, http.MethodGet, "/api/stock/availability?variation_id=var-1&location_id=loc-1&required=abc", f.clerk, "", nil)
	assert.Equal(t, http.StatusBadRequest, bad.status)

	hist := f.call(t, http.MethodGet, "/api/stock/transactions?variation_id=var-1&location_id=loc-1&limit=10", f.admin, "", nil)
	require.Equal(t, http.StatusOK, hist.status)
	items := decode[dto.TransactionListResponse](t, hist).Items
	require.Len(t, items, 2)
	assert.Equal(t, "opening", items[0].Type)
	assert.Equal(t, "transfer_out", items[1].Type)

	v := f.call(t, http.MethodGet, "/api/stock/verify?variation_id=var-1&location_id=loc-1", f.admin, "", nil)
	require.Equal(t, http.StatusOK, v.status)
	ver := decode[dto.VerificationResponse](t, v)
	assert.True(t, ver.Consistent)
	assert.Nil(t, ver.ChainBreak)
	assert.EqualValues(t, 2, ver.EntryCount)
}

// ──────────────────────────────────────────────────────────────────────────────
// Correcciones
// ──────────────────────────────────────────────────────────────────────────────

func TestCorrectionAPI_FlujoCompleto(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	created := f.call(t, http.MethodPost, "/api/corrections", f.clerk, "corr-1", map[string]any{
		"product_id":     "prod-1",
		"variation_id":   "var-1",
		"location_id":    "loc-1",
		"physical_count": "95",
		"reason":         "conteo mensual",
	})
	require.Equal(t, http.StatusCreated, created.status, string(created.body))
	corr := decode[dto.CorrectionResponse](t, created)
	assert.Equal(t, entity.CorrectionStatusPending, corr.Status)
	assert.True(t, corr.SystemCountAtRequestTime.Equal(decimal.NewFromInt(100)))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)), "crear no mueve stock")

	// Venta entre la solicitud y la aprobación.
	r := f.call(t, http.MethodPost, "/api/stock/mutations", f.clerk, "", mutationBody("sale", -10, "sale-60"))
	require.Equal(t, http.StatusCreated, r.status)

	denied := f.call(t, http.MethodPost, "/api/corrections/"+corr.ID+"/approve", f.clerk, "", nil)
	assert.Equal(t, http.StatusForbidden, denied.status)

	approved := f.call(t, http.MethodPost, "/api/corrections/"+corr.ID+"/approve", f.manager, "appr-1", nil)
	require.Equal(t, http.StatusOK, approved.status, string(approved.body))
	res := decode[dto.ApprovalResponse](t, approved)
	assert.True(t, res.PreviousBalance.Equal(decimal.NewFromInt(90)))
	assert.True(t, res.Adjustment.Equal(decimal.NewFromInt(5)))
	assert.True(t, res.NewBalance.Equal(decimal.NewFromInt(95)))
	assert.NotEmpty(t, res.TransactionID)

	again := f.call(t, http.MethodPost, "/api/corrections/"+corr.ID+"/approve", f.manager, "", nil)
	assert.Equal(t, http.StatusConflict, again.status)
	assert.Contains(t, string(again.body), "ALREADY_APPROVED")

	got := f.call(t, http.MethodGet, "/api/corrections/"+corr.ID, f.clerk, "", nil)
	require.Equal(t, http.StatusOK, got.status)
	detail := decode[dto.CorrectionResponse](t, got)
	assert.Equal(t, entity.CorrectionStatusApproved, detail.Status)
	assert.Equal(t, res.TransactionID, detail.LinkedTransactionID)

	list := f.call(t, http.MethodGet, "/api/corrections?status=approved", f.admin, "", nil)
	require.Equal(t, http.StatusOK, list.status)
	assert.Len(t, decode[dto.CorrectionListResponse](t, list).Items, 1)

	pending := f.call(t, http.MethodGet, "/api/corrections?status=pending", f.admin, "", nil)
	require.Equal(t, http.StatusOK, pending.status)
	assert.Empty(t, decode[dto.CorrectionListResponse](t, pending).Items)
}

func TestCorrectionAPI_MismaLlaveEnOtraCorreccion_Retorna422(t *testing.T) {
	f := newAPI(t)
	f.seedOpening(t)

	create := func(physical, key string) dto.CorrectionResponse {
		r := f.call(t, http.MethodPost, "/api/corrections", f.clerk, key, map[string]any{
			"product_id":     "prod-1",
			"variation_id":   "var-1",
			"location_id":    "loc-1",
			"physical_count": physical,
			"reason":         "conteo mensual",
		})
		require.Equal(t, http.StatusCreated, r.status, string(r.body))
		return decode[dto.CorrectionResponse](t, r)
	}
	a := create("95", "corr-a")
	b := create("97", "corr-b")

	first := f.call(t, http.MethodPost, "/api/corrections/"+a.ID+"/approve", f.manager, "appr-x", nil)
	require.Equal(t, http.StatusOK, first.status, string(first.body))

	second := f.call(t, http.MethodPost, "/api/corrections/"+b.ID+"/approve", f.manager, "appr-x", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, second.status)
	assert.Contains(t, string(second.body), "IDEMPOTENCY_KEY_REUSED")
	assert.Empty(t, second.header.Get(apphttp.HeaderReplayed), "no reproduce la aprobación de otra corrección")

	got := f.call(t, http.MethodGet, "/api/corrections/"+b.ID, f.manager, "", nil)
	require.Equal(t, http.StatusOK, got.status)
	assert.Equal(t, entity.CorrectionStatusPending, decode[dto.CorrectionResponse](t, got).Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(95)))
}

func TestCorrectionAPI_Inexistente_Retorna404(t *testing.T) {
	f := newAPI(t)
	r := f.call(t, http.MethodGet, "/api/corrections/no-existe", f.admin, "", nil)
	assert.Equal(t, http.StatusNotFound, r.status)

	r = f.call(t, http.MethodPost, "/api/corrections/no-existe/approve", f.admin, "", nil)
	assert.Equal(t, http.StatusNotFound, r.status)
}

func TestCorrectionAPI_EstadoInvalido_Retorna400(t *testing.T) {
	f := newAPI(t)
	r := f.call(t, http.MethodGet, "/api/corrections?status=rejected", f.admin, "", nil)
	assert.Equal(t, http.StatusBadRequest, r.status)
}
