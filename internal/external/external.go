// Внешние исполнители: автоматическая проверка этапов, перевод средств,
// уведомления. Ядро зовёт их через узкие интерфейсы и не знает деталей.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// Verifier оценивает доказательства выполнения этапа, балл 0–100.
type Verifier interface {
	Verify(ctx context.Context, evidence []string) (score int, remarks string, err error)
}

// FundReleaser переводит сумму получателю и возвращает ссылку на квитанцию.
type FundReleaser interface {
	Release(ctx context.Context, destination string, amount float64) (receiptRef string, err error)
}

// Notifier доставляет событие получателю. Ошибки логируются, не пробрасываются.
type Notifier interface {
	Notify(recipient string, event string)
}

// HTTPVerifier дергает внешний сервис проверки.
type HTTPVerifier struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPVerifier(baseURL string) *HTTPVerifier {
	return &HTTPVerifier{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func (v *HTTPVerifier) Verify(ctx context.Context, evidence []string) (int, string, error) {
	b, _ := json.Marshal(map[string]any{"evidence": evidence})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+"/verify", bytes.NewReader(b))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := v.HTTP.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, "", fmt.Errorf("verifier returned %d", resp.StatusCode)
	}

	var out struct {
		Score   int    `json:"score"`
		Remarks string `json:"remarks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", err
	}
	return out.Score, out.Remarks, nil
}

// StubVerifier — заглушка на время отсутствия внешнего сервиса: балл 60–99.
type StubVerifier struct{}

func (StubVerifier) Verify(_ context.Context, _ []string) (int, string, error) {
	score := rand.Intn(40) + 60
	remarks := "Low confidence"
	if score > 70 {
		remarks = "Likely completed"
	}
	return score, remarks, nil
}

// HTTPFundReleaser дергает платёжный шлюз.
type HTTPFundReleaser struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPFundReleaser(baseURL string) *HTTPFundReleaser {
	return &HTTPFundReleaser{BaseURL: baseURL, HTTP: &http.Client{Timeout: 60 * time.Second}}
}

func (f *HTTPFundReleaser) Release(ctx context.Context, destination string, amount float64) (string, error) {
	b, _ := json.Marshal(map[string]any{"destination": destination, "amount": amount})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/release", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("payout returned %d", resp.StatusCode)
	}

	var out struct {
		Success    bool   `json:"success"`
		ReceiptRef string `json:"receiptRef"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("payout rejected the transfer")
	}
	return out.ReceiptRef, nil
}

// StubFundReleaser не двигает деньги, только выдаёт локальную квитанцию.
// Для стендов без платёжного шлюза.
type StubFundReleaser struct{}

func (StubFundReleaser) Release(_ context.Context, destination string, amount float64) (string, error) {
	ref := fmt.Sprintf("STUB-%d", time.Now().UnixNano())
	log.Printf("stub payout %.2f to %s, receipt %s", amount, destination, ref)
	return ref, nil
}

// LogNotifier пишет уведомления в лог.
type LogNotifier struct{}

func (LogNotifier) Notify(recipient string, event string) {
	log.Printf("notify %s: %s", recipient, event)
}
