// Package testutil provides shared test doubles and fixtures for the sync engines.
package testutil

import (
	"context"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
)

// FakeBaseURL is the base URL every service points at when backed by a FakeAPI.
const FakeBaseURL = "http://fake.api"

// FakeAPI is an in-process REST backend. Tests register routes on App and
// point an api.Client at it through HTTPClient.
type FakeAPI struct {
	App *fiber.App

	mu    sync.Mutex
	calls []string
}

// NewFakeAPI creates a FakeAPI that records every request it receives.
func NewFakeAPI() *FakeAPI {
	f := &FakeAPI{}
	f.App = fiber.New(fiber.Config{DisableStartupMessage: true})
	f.App.Use(func(c *fiber.Ctx) error {
		f.mu.Lock()
		f.calls = append(f.calls, c.Method()+" "+c.Path())
		f.mu.Unlock()
		return c.Next()
	})
	return f
}

// HTTPClient returns an http.Client whose transport serves requests from App.
func (f *FakeAPI) HTTPClient() *http.Client {
	return &http.Client{Transport: fiberTransport{app: f.App}}
}

// Calls returns the "METHOD /path" lines received so far.
func (f *FakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times method and path were requested.
func (f *FakeAPI) CallCount(method, path string) int {
	want := method + " " + path
	n := 0
	for _, c := range f.Calls() {
		if c == want {
			n++
		}
	}
	return n
}

// Fail is a fiber handler answering with status and an error body.
func Fail(status int, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
}

// OK is a fiber handler answering 200 with an empty JSON object.
func OK(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{})
}

type fiberTransport struct {
	app *fiber.App
}

type testResult struct {
	resp *http.Response
	err  error
}

func (t fiberTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	done := make(chan testResult, 1)
	go func() {
		resp, err := t.app.Test(req.Clone(context.Background()), -1)
		done <- testResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}
