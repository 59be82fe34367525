package auth

import (
	"context"
	"testing"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/routing"
)

func newDispatcher(t *testing.T, chain *Chain, bypass []string) *routing.Dispatcher {
	t.Helper()
	whoami := func(ctx context.Context, args *routing.Args) (*api.Response, error) {
		return api.Text(IdentityFromRequest(args.Request()).Subject, api.StatusOK), nil
	}
	table, err := routing.Build(
		routing.Controller{Prefix: "Me/", Actions: []routing.Action{{
			Name:    "Who",
			Params:  []routing.Param{routing.RequestParam("req")},
			Handler: whoami,
		}}},
		routing.Controller{
			Prefix:     "Admin/",
			Middleware: []routing.Middleware{RequireScope("admin")},
			Actions: []routing.Action{{
				Name:    "Who",
				Params:  []routing.Param{routing.RequestParam("req")},
				Handler: whoami,
			}},
		},
		routing.Controller{Actions: []routing.Action{{
			Name: "health",
			Handler: func(ctx context.Context, args *routing.Args) (*api.Response, error) {
				return api.Text("ok", api.StatusOK), nil
			},
		}}},
	)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return routing.NewDispatcher(table, routing.WithMiddleware(Middleware(chain, bypass)))
}

func serve(d *routing.Dispatcher, req *api.Request) (api.Status, string) {
	resp := d.ServeRequest(context.Background(), req)
	body, _ := resp.Bytes()
	return resp.Status, string(body)
}

func TestMiddlewareBypass(t *testing.T) {
	d := newDispatcher(t, &Chain{DefaultDecision: No}, []string{"health", "public/"})

	tests := []struct {
		path string
		want api.Status
	}{
		{"/health", api.StatusOK},
		{"/public/missing.css", api.StatusNotFound},
		{"/public", api.StatusForbidden},
		{"/healthz", api.StatusForbidden},
		{"/Me/Who", api.StatusForbidden},
	}
	for _, tt := range tests {
		if status, _ := serve(d, newRequest(tt.path)); status != tt.want {
			t.Errorf("%s: status = %v, want %v", tt.path, status, tt.want)
		}
	}
}

func TestMiddlewareRejectsBeforeRouting(t *testing.T) {
	d := newDispatcher(t, &Chain{DefaultDecision: No}, nil)

	status, body := serve(d, newRequest("/No/Such/Route"))
	if status != api.StatusForbidden || body != "Forbidden." {
		t.Errorf("got %v %q, want 403 Forbidden.", status, body)
	}
}

func TestMiddlewareStoresIdentity(t *testing.T) {
	chain := &Chain{
		Authenticators: []Authenticator{&mockAuthn{result: Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}}},
		DefaultDecision: No,
	}
	d := newDispatcher(t, chain, nil)

	if status, body := serve(d, newRequest("/Me/Who")); status != api.StatusOK || body != "alice" {
		t.Errorf("got %v %q, want 200 alice", status, body)
	}
}

func TestMiddlewareEmptySubjectIsServerError(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{&mockAuthn{result: Result{Decision: Yes, Identity: &Identity{}}}}}
	d := newDispatcher(t, chain, nil)

	if status, _ := serve(d, newRequest("/Me/Who")); status != api.StatusInternalServerError {
		t.Errorf("status = %v, want 500", status)
	}
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name       string
		scopes     []string
		wantStatus api.Status
	}{
		{"with scope", []string{"read", "admin"}, api.StatusOK},
		{"without scope", []string{"read"}, api.StatusForbidden},
		{"no scopes", nil, api.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &Chain{Authenticators: []Authenticator{&mockAuthn{result: Result{
				Decision: Yes,
				Identity: &Identity{Subject: "carol", Scopes: tt.scopes},
			}}}}
			d := newDispatcher(t, chain, nil)

			if status, _ := serve(d, newRequest("/Admin/Who")); status != tt.wantStatus {
				t.Errorf("status = %v, want %v", status, tt.wantStatus)
			}
			if status, _ := serve(d, newRequest("/Me/Who")); status != api.StatusOK {
				t.Errorf("unscoped controller: status = %v, want 200", status)
			}
		})
	}
}
