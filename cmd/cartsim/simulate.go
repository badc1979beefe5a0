package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/storefront/internal/adapter/handler"
)

type simOptions struct {
	BaseURL     string
	Shoppers    int
	Ops         int
	Parallel    int
	Concurrency int
	Variants    []string
	Seed        uint64
	Timeout     time.Duration
}

type report struct {
	Shoppers   int
	Requests   int64
	Failed     int64
	Duration   time.Duration
	Violations []string
}

func (r report) Print(w io.Writer) {
	fmt.Fprintln(w, "========== CART SIMULATION RESULTS ==========")
	fmt.Fprintf(w, "Shoppers:         %d\n", r.Shoppers)
	fmt.Fprintf(w, "Requests:         %d\n", r.Requests)
	fmt.Fprintf(w, "Failed requests:  %d\n", r.Failed)
	fmt.Fprintf(w, "Duration:         %v\n", r.Duration)
	fmt.Fprintln(w, "==============================================")
	if len(r.Violations) == 0 {
		fmt.Fprintln(w, "PASS: every cart has one line per variant within stock")
		return
	}
	for _, v := range r.Violations {
		fmt.Fprintf(w, "FAIL: %s\n", v)
	}
}

type simulator struct {
	opts     simOptions
	requests atomic.Int64
	failed   atomic.Int64

	mu         sync.Mutex
	violations []string
}

func runSimulation(ctx context.Context, opts simOptions) (report, error) {
	if len(opts.Variants) == 0 {
		return report{}, errors.New("no variants to shop for")
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}

	sim := &simulator{opts: opts}
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i := 0; i < opts.Shoppers; i++ {
		g.Go(func() error {
			return sim.shop(ctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return report{}, err
	}

	return report{
		Shoppers:   opts.Shoppers,
		Requests:   sim.requests.Load(),
		Failed:     sim.failed.Load(),
		Duration:   time.Since(start),
		Violations: sim.violations,
	}, nil
}

// shop runs one shopper session: a cookie is established first, then the
// operations are fired with the configured per-session parallelism.
func (s *simulator) shop(ctx context.Context, shopper int) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, "cookie jar")
	}
	client := &http.Client{Jar: jar, Timeout: s.opts.Timeout}

	if _, err := s.call(ctx, client, http.MethodGet, "/api/cart", nil); err != nil {
		return errors.Wrapf(err, "shopper %d: open session", shopper)
	}

	var wg sync.WaitGroup
	opsPerWorker := s.opts.Ops / s.opts.Parallel
	for w := 0; w < s.opts.Parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(s.opts.Seed, uint64(shopper*s.opts.Parallel+w)))
			for range opsPerWorker {
				s.randomOp(ctx, client, rng)
			}
		}()
	}
	wg.Wait()

	cart, err := s.call(ctx, client, http.MethodGet, "/api/cart", nil)
	if err != nil {
		return errors.Wrapf(err, "shopper %d: read cart", shopper)
	}
	for _, v := range checkCart(cart) {
		s.addViolation(fmt.Sprintf("shopper %d: %s", shopper, v))
	}
	return nil
}

func (s *simulator) randomOp(ctx context.Context, client *http.Client, rng *rand.Rand) {
	variant := s.opts.Variants[rng.IntN(len(s.opts.Variants))]

	var err error
	switch n := rng.IntN(10); {
	case n < 6:
		_, err = s.call(ctx, client, http.MethodPost, "/api/cart/items", handler.AddItemRequest{VariantID: variant})
	case n < 9:
		qty := rng.IntN(8)
		_, err = s.call(ctx, client, http.MethodPatch, "/api/cart/items/"+variant, handler.UpdateQuantityRequest{Quantity: &qty})
	default:
		_, err = s.call(ctx, client, http.MethodDelete, "/api/cart/items/"+variant, nil)
	}
	if err != nil {
		s.failed.Add(1)
	}
}

func (s *simulator) call(ctx context.Context, client *http.Client, method, path string, body any) (handler.CartResponse, error) {
	s.requests.Add(1)

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return handler.CartResponse{}, errors.Wrap(err, "encode body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.opts.BaseURL+path, &buf)
	if err != nil {
		return handler.CartResponse{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return handler.CartResponse{}, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handler.CartResponse{}, errors.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	var cart handler.CartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return handler.CartResponse{}, errors.Wrap(err, "decode cart")
	}
	return cart, nil
}

func (s *simulator) addViolation(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
}

// checkCart reports lines sharing a variant, quantities outside 1..stock cap
// and an item count that disagrees with the lines.
func checkCart(cart handler.CartResponse) []string {
	var violations []string
	seen := make(map[string]bool, len(cart.Lines))
	count := 0

	for _, l := range cart.Lines {
		if seen[l.VariantID] {
			violations = append(violations, fmt.Sprintf("variant %s appears twice", l.VariantID))
		}
		seen[l.VariantID] = true

		if l.Quantity < 1 || l.Quantity > l.StockCap {
			violations = append(violations, fmt.Sprintf("variant %s quantity %d outside 1..%d", l.VariantID, l.Quantity, l.StockCap))
		}
		count += l.Quantity
	}

	if count != cart.ItemCount {
		violations = append(violations, fmt.Sprintf("item count %d, lines sum to %d", cart.ItemCount, count))
	}
	return violations
}
