package payment

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MonoGateway)(nil)

const (
	currencyUAH     = 980
	invoiceValidity = 3600 // seconds the pay page stays open
)

// MonoGateway implements adapter.PaymentGateway against the Monobank merchant
// API. All error decoding happens here; callers only see InvoiceStatus values,
// *adapter.GatewayError, or adapter.ErrGatewayUnavailable.
type MonoGateway struct {
	token       string
	baseURL     string
	redirectURL string
	client      *http.Client
	log         *zerolog.Logger
}

func NewMonoGateway(token, baseURL, redirectURL string, log *zerolog.Logger) *MonoGateway {
	return &MonoGateway{
		token:       token,
		baseURL:     strings.TrimRight(baseURL, "/"),
		redirectURL: redirectURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
}

func (g *MonoGateway) Name() string { return "monobank" }

type basketItem struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
	Sum  int64  `json:"sum"`
	Code string `json:"code"`
	Unit string `json:"unit"`
}

type merchantPaymInfo struct {
	Reference   string       `json:"reference"`
	Destination string       `json:"destination"`
	Comment     string       `json:"comment,omitempty"`
	BasketOrder []basketItem `json:"basketOrder"`
}

type createInvoiceRequest struct {
	Amount           int64            `json:"amount"`
	Ccy              int              `json:"ccy"`
	MerchantPaymInfo merchantPaymInfo `json:"merchantPaymInfo"`
	RedirectURL      string           `json:"redirectUrl,omitempty"`
	Validity         int              `json:"validity,omitempty"`
	PaymentType      string           `json:"paymentType,omitempty"`
	SaveCardData     *saveCardData    `json:"saveCardData,omitempty"`
}

type saveCardData struct {
	SaveCard bool   `json:"saveCard"`
	WalletID string `json:"walletId"`
}

type createInvoiceResponse struct {
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
}

type walletPaymentRequest struct {
	CardToken        string           `json:"cardToken"`
	Amount           int64            `json:"amount"`
	Ccy              int              `json:"ccy"`
	InitiationKind   string           `json:"initiationKind"`
	MerchantPaymInfo merchantPaymInfo `json:"merchantPaymInfo"`
	PaymentType      string           `json:"paymentType,omitempty"`
}

type walletPaymentResponse struct {
	InvoiceID string `json:"invoiceId"`
}

type invoiceStatusResponse struct {
	InvoiceID     string `json:"invoiceId"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason"`
	ModifiedDate  string `json:"modifiedDate"`
	PaymentInfo   *struct {
		MaskedPan     string `json:"maskedPan"`
		PaymentSystem string `json:"paymentSystem"`
	} `json:"paymentInfo"`
	WalletData *struct {
		CardToken string `json:"cardToken"`
		WalletID  string `json:"walletId"`
		Status    string `json:"status"`
	} `json:"walletData"`
}

type walletCardItem struct {
	CardToken string `json:"cardToken"`
	MaskedPan string `json:"maskedPan"`
	Brand     string `json:"brand"`
}

// gatewayErrBody is Monobank's uniform error envelope on non-200 responses.
type gatewayErrBody struct {
	ErrCode string `json:"errCode"`
	ErrText string `json:"errText"`
}

// minorUnits converts a UAH price into kopiykas.
func minorUnits(price float64) int64 {
	return int64(price*100 + 0.5)
}

func newOrderRef(prefix string) string {
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func newWalletID(userID int64) string {
	return fmt.Sprintf("wallet_%d_%s", userID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (g *MonoGateway) CreateInvoice(ctx context.Context, req adapter.InvoiceRequest) (adapter.CreatedInvoice, error) {
	orderRef := newOrderRef("order")
	amount := minorUnits(req.Price)
	body := createInvoiceRequest{
		Amount: amount,
		Ccy:    currencyUAH,
		MerchantPaymInfo: merchantPaymInfo{
			Reference:   orderRef,
			Destination: fmt.Sprintf("%s, %d mo.", req.ProductName, req.Months),
			BasketOrder: []basketItem{{
				Name: req.ProductName,
				Qty:  1,
				Sum:  amount,
				Code: "prod_" + req.ProductName,
				Unit: "pc",
			}},
		},
		RedirectURL: g.redirectURL,
		Validity:    invoiceValidity,
		PaymentType: "debit",
	}

	var out createInvoiceResponse
	if err := g.post(ctx, "/api/merchant/invoice/create", body, &out); err != nil {
		return adapter.CreatedInvoice{}, err
	}
	return adapter.CreatedInvoice{OrderRef: orderRef, InvoiceID: out.InvoiceID, PayURL: out.PageURL}, nil
}

func (g *MonoGateway) CreateTokenizedInvoice(ctx context.Context, req adapter.InvoiceRequest) (adapter.TokenizedInvoice, error) {
	orderRef := newOrderRef("sub")
	walletID := newWalletID(req.UserID)
	amount := minorUnits(req.Price)
	body := createInvoiceRequest{
		Amount: amount,
		Ccy:    currencyUAH,
		MerchantPaymInfo: merchantPaymInfo{
			Reference:   orderRef,
			Destination: "Subscription: " + req.ProductName,
			Comment:     fmt.Sprintf("%s, %d mo.", req.ProductName, req.Months),
			BasketOrder: []basketItem{{
				Name: req.ProductName,
				Qty:  1,
				Sum:  amount,
				Code: "sub_" + req.ProductName,
				Unit: "pc",
			}},
		},
		RedirectURL:  g.redirectURL,
		Validity:     invoiceValidity,
		PaymentType:  "debit",
		SaveCardData: &saveCardData{SaveCard: true, WalletID: walletID},
	}

	var out createInvoiceResponse
	if err := g.post(ctx, "/api/merchant/invoice/create", body, &out); err != nil {
		return adapter.TokenizedInvoice{}, err
	}
	return adapter.TokenizedInvoice{
		CreatedInvoice: adapter.CreatedInvoice{OrderRef: orderRef, InvoiceID: out.InvoiceID, PayURL: out.PageURL},
		WalletID:       walletID,
	}, nil
}

func (g *MonoGateway) ChargeToken(ctx context.Context, walletID, cardToken string, req adapter.InvoiceRequest) (adapter.TokenCharge, error) {
	orderRef := newOrderRef("charge")
	amount := minorUnits(req.Price)
	body := walletPaymentRequest{
		CardToken:      cardToken,
		Amount:         amount,
		Ccy:            currencyUAH,
		InitiationKind: "merchant",
		MerchantPaymInfo: merchantPaymInfo{
			Reference:   orderRef,
			Destination: "Automatic renewal: " + req.ProductName,
			Comment:     fmt.Sprintf("%s, %d mo.", req.ProductName, req.Months),
			BasketOrder: []basketItem{{
				Name: req.ProductName,
				Qty:  1,
				Sum:  amount,
				Code: "auto_sub_" + req.ProductName,
				Unit: "pc",
			}},
		},
		PaymentType: "debit",
	}

	var out walletPaymentResponse
	if err := g.post(ctx, "/api/merchant/wallet/payment", body, &out); err != nil {
		return adapter.TokenCharge{}, err
	}
	return adapter.TokenCharge{OrderRef: orderRef, InvoiceID: out.InvoiceID}, nil
}

func (g *MonoGateway) InvoiceStatus(ctx context.Context, invoiceID string) (adapter.StatusResult, error) {
	var out invoiceStatusResponse
	path := "/api/merchant/invoice/status?invoiceId=" + url.QueryEscape(invoiceID)
	if err := g.get(ctx, path, &out); err != nil {
		return adapter.StatusResult{}, err
	}

	res := adapter.StatusResult{
		InvoiceID:     out.InvoiceID,
		Status:        adapter.InvoiceStatus(out.Status),
		FailureReason: out.FailureReason,
	}
	if out.PaymentInfo != nil {
		res.MaskedPan = out.PaymentInfo.MaskedPan
		res.PaymentSystem = out.PaymentInfo.PaymentSystem
	}
	if out.WalletData != nil {
		res.CardToken = out.WalletData.CardToken
	}
	if out.ModifiedDate != "" {
		if t, err := time.Parse(time.RFC3339, out.ModifiedDate); err == nil {
			res.ModifiedAt = t
		}
	}
	return res, nil
}

func (g *MonoGateway) WalletCards(ctx context.Context, walletID string) ([]adapter.WalletCard, error) {
	var out []walletCardItem
	path := "/api/merchant/wallet/" + url.PathEscape(walletID) + "/cards"
	if err := g.get(ctx, path, &out); err != nil {
		return nil, err
	}

	cards := make([]adapter.WalletCard, 0, len(out))
	for _, c := range out {
		cards = append(cards, adapter.WalletCard{CardToken: c.CardToken, MaskedPan: c.MaskedPan, Brand: c.Brand})
	}
	return cards, nil
}

func (g *MonoGateway) CancelInvoice(ctx context.Context, invoiceID string) error {
	body := map[string]string{"invoiceId": invoiceID}
	return g.post(ctx, "/api/merchant/invoice/cancel", body, nil)
}

func (g *MonoGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *MonoGateway) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return g.do(req, out)
}

func (g *MonoGateway) do(req *http.Request, out interface{}) error {
	req.Header.Set("X-Token", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn().Err(err).Str("path", req.URL.Path).Msg("gateway request failed")
		return adapter.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.ErrGatewayUnavailable
	}

	if resp.StatusCode != http.StatusOK {
		return g.decodeError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		g.log.Warn().Str("path", req.URL.Path).Msg("gateway returned unparseable body")
		return adapter.ErrGatewayUnavailable
	}
	return nil
}

// decodeError maps the gateway's error envelope onto a typed GatewayError.
// A body that carries no recognizable envelope means we cannot tell what
// happened, so it degrades to ErrGatewayUnavailable.
func (g *MonoGateway) decodeError(status int, body []byte) error {
	var eb gatewayErrBody
	if err := json.Unmarshal(body, &eb); err != nil || (eb.ErrCode == "" && eb.ErrText == "") {
		g.log.Warn().Int("status", status).Msg("gateway error without envelope")
		return adapter.ErrGatewayUnavailable
	}

	code := adapter.GatewayCodeUnknown
	switch eb.ErrCode {
	case "TOKEN_NOT_FOUND":
		code = adapter.GatewayCodeTokenNotFound
	case "CARD_DECLINED", "DECLINED":
		code = adapter.GatewayCodeCardDeclined
	}
	return &adapter.GatewayError{Code: code, Text: eb.ErrText}
}
