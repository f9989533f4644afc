package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"multicaster/client"
	"multicaster/config"
	"multicaster/gridmap"
	"multicaster/player"
	"multicaster/raycast"
	"multicaster/server"
)

// multicaster 入口：server 只跑权威服务端；host 同时在本机跑一个无界面客户端；join 只跑客户端
func main() {
	var (
		cfgPath string
		mode    string
		addr    string
		frames  int
	)
	flag.StringVar(&cfgPath, "config", "", "config file path (default: config.local / config.prod by GO_ENV)")
	flag.StringVar(&mode, "mode", "server", "server | host | join")
	flag.StringVar(&addr, "addr", "", "server endpoint for join mode, e.g. 192.168.1.20:53000")
	flag.IntVar(&frames, "frames", 0, "headless client frames to run, 0 = until interrupted")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	log, err := server.NewLogger(cfg.Log.Path, cfg.Log.Console)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	grid, err := loadGrid(cfg.Map)
	if err != nil {
		log.Fatalw("load map", "path", cfg.Map.Path, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "server":
		runServer(ctx, cfg, grid, log, nil)
	case "host":
		runServer(ctx, cfg, grid, log, func(ctx context.Context, listenAddr string) {
			// 配置端口为 0 时只有实际监听地址才知道端口
			endpoint, err := client.LoopbackEndpoint(listenAddr)
			if err != nil {
				log.Errorw("resolve local endpoint", "err", err)
				return
			}
			runClient(ctx, cfg, endpoint, grid, frames, log, nil)
		})
	case "join":
		store, err := client.OpenEndpointStore(cfg.Client.AppName)
		if err != nil {
			log.Warnw("endpoint store unavailable", "err", err)
		}
		var es client.EndpointStore
		if store != nil {
			es = store
		}
		endpoint := addr
		if endpoint == "" {
			endpoint = client.ResolveEndpoint(false, cfg.Server.Port, es, cfg.Client.Endpoint)
		}
		runClient(ctx, cfg, endpoint, grid, frames, log, es)
	default:
		log.Fatalw("unknown mode", "mode", mode)
	}
	log.Info("Shutting down...")
}

func loadGrid(m config.Map) (*gridmap.Grid, error) {
	grid := gridmap.Default()
	if m.Path != "" {
		g, err := gridmap.Load(m.Path)
		if err != nil {
			return nil, err
		}
		grid = g
	}
	return grid, grid.Validate()
}

// runServer 启动权威服务端和 admin HTTP；local 非空时在同一进程里跑客户端，客户端结束也会触发退出
func runServer(ctx context.Context, cfg *config.Config, grid *gridmap.Grid, log *zap.SugaredLogger, local func(ctx context.Context, listenAddr string)) {
	srv := server.New(cfg.Server, grid.Spawn(), log)
	if err := srv.Start(); err != nil {
		log.Fatalw("start server", "err", err)
	}
	defer srv.Stop()

	if cfg.Server.AdminAddr != "" {
		httpSrv := &http.Server{Addr: cfg.Server.AdminAddr, Handler: server.NewAdminRouter(srv)}
		go func() {
			log.Infow("admin listening", "addr", cfg.Server.AdminAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("admin listen", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	if local != nil {
		local(ctx, srv.Addr())
		return
	}
	<-ctx.Done()
}

// runClient 无界面客户端：固定 60 帧/秒推进模拟并驱动会话
func runClient(ctx context.Context, cfg *config.Config, endpoint string, grid *gridmap.Grid, frames int, log *zap.SugaredLogger, store client.EndpointStore) {
	pc := cfg.Player.Simulation()
	pc.Start.Position = grid.Spawn()
	sim := player.New(pc, grid, raycast.New(cfg.Render.Raycast()))

	sess := client.NewSession(cfg.Client, endpoint, log)
	defer sess.Close()
	saved := false

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	last := time.Now()
	for n := 0; frames == 0 || n < frames; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sim.Update(now.Sub(last), scriptedInput(n))
			last = now

			if sess.State() == client.Disconnected {
				sess.Reconnect(now)
				continue
			}
			if !saved && store != nil {
				if err := client.SaveEndpoint(store, endpoint); err != nil {
					log.Warnw("save endpoint", "err", err)
				}
				saved = true
			}
			sess.Update(now, sim.Position())
			if n%300 == 0 {
				log.Infow("client frame", "frame", n, "fps", sim.FPS(), "players", len(sess.Players()), "messages", len(sess.Broadcasts()))
			}
		}
	}
}

// scriptedInput 无界面时的固定输入：前进一段再转向一段
func scriptedInput(frame int) player.Input {
	switch phase := frame % 240; {
	case phase < 120:
		return player.Input{Forward: true}
	case phase < 180:
		return player.Input{Left: true}
	default:
		return player.Input{Backward: true, Right: true}
	}
}
