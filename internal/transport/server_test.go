package transport

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestHealth_ReflectsServingState(t *testing.T) {
	srv, err := StartServer(0)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	c, err := Dial(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func(want string) {
		t.Helper()
		got, err := c.Check(ctx)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if got != want {
			t.Fatalf("status = %s, want %s", got, want)
		}
	}

	check("NOT_SERVING")
	srv.SetServing(true)
	check("SERVING")
	srv.SetServing(false)
	check("NOT_SERVING")
}
