package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/auth"
	"github.com/rhuss/ember/pkg/relay"
	"github.com/rhuss/ember/pkg/routing"
	"github.com/rhuss/ember/pkg/websocket"
)

func demoControllers() []routing.Controller {
	return []routing.Controller{
		echoController(),
		heatmapController(),
		ticksController(),
		chatController(),
	}
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// echoController serves /Echo/Say?msg=..&times=.., /Echo/Point (JSON body),
// /Echo/Whoami and /Echo/Home (a redirect).
func echoController() routing.Controller {
	return routing.Controller{
		Prefix: "Echo/",
		Actions: []routing.Action{
			{
				Name: "Say",
				Params: []routing.Param{
					routing.QueryParam("msg", routing.KindString),
					routing.QueryParam("times", routing.KindInt).WithDefault(1),
				},
				Handler: func(_ context.Context, args *routing.Args) (*api.Response, error) {
					n := min(max(args.Int("times"), 1), 100)
					return api.Text(strings.Repeat(args.String("msg"), n), api.StatusOK), nil
				},
			},
			{
				Name:   "Point",
				Params: []routing.Param{routing.BodyParam("p", func() any { return &point{} })},
				Handler: func(_ context.Context, args *routing.Args) (*api.Response, error) {
					p := args.Body().(*point)
					return api.JSON(point{X: p.Y, Y: p.X}, api.StatusOK), nil
				},
			},
			{
				Name:   "Whoami",
				Params: []routing.Param{routing.RequestParam("req")},
				Handler: func(_ context.Context, args *routing.Args) (*api.Response, error) {
					id := auth.IdentityFromRequest(args.Request())
					if id == nil {
						return api.Text("nobody", api.StatusOK), nil
					}
					return api.JSON(id, api.StatusOK).SetCookie(api.Cookie{
						Name:     "last_subject",
						Value:    id.Subject,
						Path:     "/",
						Secure:   true,
						SameSite: api.SameSiteLax,
					}), nil
				},
			},
			{
				Name: "Home",
				Handler: func(context.Context, *routing.Args) (*api.Response, error) {
					return api.Redirect("/Echo/Say?msg=hello", false), nil
				},
			},
		},
	}
}

type heatmap struct {
	ID    int         `json:"id"`
	Type  string      `json:"type"`
	Cells [][]float64 `json:"cells"`
}

// heatmapController has two actions sharing a prefix, so /Heatmap/GetHeatmap
// and /Heatmap/GetHeatmapTypes must resolve to different routes.
func heatmapController() routing.Controller {
	types := []string{"density", "latency", "errors"}
	return routing.Controller{
		Prefix: "Heatmap/",
		Actions: []routing.Action{
			{
				Name: "GetHeatmap",
				Params: []routing.Param{
					routing.QueryParam("id", routing.KindInt),
					routing.QueryParam("type", routing.KindString).WithDefault("density"),
				},
				AsyncHandler: routing.Go(func(_ context.Context, args *routing.Args) (*api.Response, error) {
					id := args.Int("id")
					cells := make([][]float64, 4)
					for y := range cells {
						cells[y] = make([]float64, 4)
						for x := range cells[y] {
							cells[y][x] = float64((id*(x+1)*(y+1))%10) / 10
						}
					}
					return api.JSON(heatmap{ID: id, Type: args.String("type"), Cells: cells}, api.StatusOK), nil
				}),
			},
			{
				Name: "GetHeatmapTypes",
				Handler: func(context.Context, *routing.Args) (*api.Response, error) {
					return api.JSON(types, api.StatusOK), nil
				},
			},
		},
	}
}

// ticksController streams count lines, one per interval milliseconds.
func ticksController() routing.Controller {
	return routing.Controller{
		Prefix: "Ticks/",
		Actions: []routing.Action{{
			Name: "Feed",
			Params: []routing.Param{
				routing.QueryParam("count", routing.KindInt).WithDefault(5),
				routing.QueryParam("interval", routing.KindInt).WithDefault(200),
			},
			Handler: func(_ context.Context, args *routing.Args) (*api.Response, error) {
				count := min(max(args.Int("count"), 1), 1000)
				interval := time.Duration(min(max(args.Int("interval"), 1), 10_000)) * time.Millisecond

				s := relay.New(relay.WithCapacity(8))
				go func() {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for i := 1; ; i++ {
						if err := s.Push(context.Background(), fmt.Appendf(nil, "tick %d at %s\n", i, time.Now().Format(time.RFC3339Nano))); err != nil {
							return
						}
						if i == count {
							break
						}
						select {
						case <-ticker.C:
						case <-s.Done():
							return
						}
					}
					s.Close()
				}()
				return api.Stream(s, api.StatusOK, api.ContentTypePlaintext), nil
			},
		}},
	}
}

// chatController upgrades /Chat/Socket and echoes every message.
func chatController() routing.Controller {
	return routing.Controller{
		Prefix: "Chat/",
		Actions: []routing.Action{{
			Name: "Socket",
			Handler: func(context.Context, *routing.Args) (*api.Response, error) {
				return api.OpenWebSocket(echoSocket), nil
			},
		}},
	}
}

func echoSocket(ctx context.Context, s *websocket.Session) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, _, err := s.ReadMessage()
		if websocket.IsClosed(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.WriteText("echo: " + string(msg)); err != nil {
			return err
		}
	}
}
