// Package scanner consumes the protocol data service: account and manager
// snapshots, on-demand price updates and close paths over HTTP.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/solventlabs/liquidator"
)

type Service struct {
	baseURL string
	client  *http.Client
	log     liquidator.Log
}

func New(log liquidator.Log, baseURL string) *Service {
	return &Service{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (s *Service) Accounts(ctx context.Context) ([]*liquidator.CreditAccount, error) {
	var out []*liquidator.CreditAccount
	if err := s.get(ctx, "/v1/accounts", &out); err != nil {
		return nil, errors.Wrap(err, "fetch accounts")
	}
	return out, nil
}

func (s *Service) Managers(ctx context.Context) ([]*liquidator.CreditManagerProfile, error) {
	var out []*liquidator.CreditManagerProfile
	if err := s.get(ctx, "/v1/managers", &out); err != nil {
		return nil, errors.Wrap(err, "fetch managers")
	}
	return out, nil
}

func (s *Service) BuildUpdateCalls(ctx context.Context, account *liquidator.CreditAccount, fresh bool) ([]liquidator.Call, error) {
	req := struct {
		Account string `json:"account"`
		Fresh   bool   `json:"fresh"`
	}{account.Address.Hex(), fresh}

	var out []liquidator.Call
	if err := s.post(ctx, "/v1/priceUpdates", req, &out); err != nil {
		return nil, errors.Wrap(err, "fetch price updates")
	}
	return out, nil
}

func (s *Service) FindBestClosePath(ctx context.Context, account *liquidator.CreditAccount, profile *liquidator.CreditManagerProfile, slippageBps int64) (*liquidator.ClosePath, error) {
	req := struct {
		Account       string `json:"account"`
		CreditManager string `json:"creditManager"`
		SlippageBps   int64  `json:"slippageBps"`
	}{account.Address.Hex(), profile.Address.Hex(), slippageBps}

	var out *liquidator.ClosePath
	if err := s.post(ctx, "/v1/closePath", req, &out); err != nil {
		return nil, errors.Wrap(err, "find close path")
	}
	// The service answers null when no route exists; the builder maps that
	// to a benign skip.
	return out, nil
}

func (s *Service) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *Service) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Service) do(req *http.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("data service error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var (
	_ liquidator.Scanner     = (*Service)(nil)
	_ liquidator.PriceOracle = (*Service)(nil)
	_ liquidator.PathFinder  = (*Service)(nil)
)
