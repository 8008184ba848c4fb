package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/device"
	"github.com/snapetech/stalkertuner/internal/health"
	"github.com/snapetech/stalkertuner/internal/logging"
	"github.com/snapetech/stalkertuner/internal/playlist"
	"github.com/snapetech/stalkertuner/internal/tuner"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve /playlist.m3u, /getlink and friends over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "listen address (overrides STALKER_TUNER_ADDR)"},
		&cli.StringFlag{Name: "base-url", Usage: "public base URL for playlist links (overrides STALKER_TUNER_BASE_URL)"},
	},
	Action: serveAction,
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Addr
	if v := cmd.String("addr"); v != "" {
		addr = v
	}
	baseURL := a.cfg.BaseURL
	if v := cmd.String("base-url"); v != "" {
		baseURL = strings.TrimSuffix(v, "/")
	}

	if err := health.CheckPortal(ctx, a.portal.BaseURL); err != nil {
		log.WithError(err).Warn("Portal health check failed; serving anyway")
	} else {
		log.Printf("Portal reachable: %s", a.portal.BaseURL)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv := &tuner.Server{
		Addr:           addr,
		BaseURL:        baseURL,
		TrustedProxies: a.cfg.TrustedProxies,
		Portal:         a.portal,
		Cache:          a.cache,
		Store:          a.store,
	}
	return srv.Run(runCtx)
}

var handshakeCommand = &cli.Command{
	Name:  "handshake",
	Usage: "Force a new portal session and profile sync",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "show-token", Usage: "print the full token instead of a redacted one"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		sess, err := a.portal.Refresh(ctx)
		if err != nil {
			return err
		}
		token := logging.Redact(sess.Token)
		if cmd.Bool("show-token") {
			token = sess.Token
		}
		fmt.Printf("portal: %s\nmac:    %s\ntoken:  %s\ncookie: %s\n", sess.Portal, sess.MAC, token, sess.Cookie)
		return nil
	},
}

var indexCommand = &cli.Command{
	Name:  "index",
	Usage: "Fetch genres and channels from the portal and store the catalog",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		sess, err := a.portal.EnsureSession(ctx, false)
		if err != nil {
			return err
		}
		channels, err := a.portal.FetchChannels(ctx, sess)
		if err != nil {
			return err
		}
		byGroup := map[string]int{}
		for _, ch := range channels {
			byGroup[ch.Group()]++
		}
		groups := make([]string, 0, len(byGroup))
		for g := range byGroup {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		fmt.Printf("%d channels in %d categories\n", len(channels), len(groups))
		for _, g := range groups {
			fmt.Printf("  %5d  %s\n", byGroup[g], g)
		}
		return nil
	},
}

var playlistCommand = &cli.Command{
	Name:  "playlist",
	Usage: "Write the M3U playlist (regenerating it when stale)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "base-url", Usage: "base URL for /getlink links (default STALKER_TUNER_BASE_URL or http://localhost<addr>)"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default stdout)"},
		&cli.StringFlag{Name: "include", Usage: "comma-separated name terms to keep"},
		&cli.StringFlag{Name: "exclude", Usage: "comma-separated name terms to drop"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		base := cmd.String("base-url")
		if base == "" {
			base = a.cfg.BaseURL
		}
		if base == "" {
			base = localBase(a.cfg.Addr)
		}
		text, err := a.cache.Get(ctx, a.portal, base)
		if err != nil {
			return err
		}
		include := playlist.SplitTerms(cmd.String("include"))
		exclude := playlist.SplitTerms(cmd.String("exclude"))
		groups := playlist.SplitTerms(cmd.String("group"))
		if len(include) > 0 || len(exclude) > 0 || len(groups) > 0 {
			entries, err := playlist.Parse(strings.NewReader(text))
			if err != nil {
				return err
			}
			text = playlist.Encode(playlist.Filter(playlist.FilterGroups(entries, groups), include, exclude))
		}
		var w io.Writer = os.Stdout
		if out := cmd.String("out"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		_, err = io.WriteString(w, text+"\n")
		return err
	},
}

// localBase turns a listen address like ":8080" into http://localhost:8080.
func localBase(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

var identityCommand = &cli.Command{
	Name:  "identity",
	Usage: "Print the virtual STB identity derived from the MAC",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		id := device.FromMAC(cfg.MAC)
		fmt.Printf("model:       %s\nmac:         %s\nserial:      %s\nserial cut:  %s\ndevice id:   %s\nsignature:   %s\n",
			device.Model, id.MAC, id.SerialHash, id.SerialCut, id.DeviceID, id.Signature)
		return nil
	},
}

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Resolve the channel at a catalog index to a stream URL",
	ArgsUsage: "<index>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		idx, err := strconv.Atoi(strings.TrimSpace(cmd.Args().First()))
		if err != nil || idx < 0 {
			return fmt.Errorf("resolve: need a non-negative channel index, got %q", cmd.Args().First())
		}
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		sess, err := a.portal.EnsureSession(ctx, false)
		if err != nil {
			return err
		}
		cat := catalog.New()
		if _, err := cat.Load(ctx, a.store); err != nil || cat.Len() == 0 {
			channels, err := a.portal.FetchChannels(ctx, sess)
			if err != nil {
				return err
			}
			cat.Replace(channels)
		}
		ch, ok := cat.At(idx)
		if !ok {
			return fmt.Errorf("resolve: index %d outside catalog of %d channels", idx, cat.Len())
		}
		target, err := a.portal.Resolve(ctx, sess, ch)
		if err != nil {
			return err
		}
		if target.URL != "" {
			fmt.Printf("%s\t%s\n", target.Branch, target.URL)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(target.Raw)
	},
}

var checkCommand = &cli.Command{
	Name:  "check",
	Usage: "Probe a running instance (/, /metrics, /healthz)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "base URL of the running instance"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if err := health.CheckEndpoints(ctx, cmd.String("url")); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}
