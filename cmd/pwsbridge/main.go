package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/pwsbridge/internal/bridge"
	"github.com/lox/pwsbridge/internal/influx"
	"github.com/lox/pwsbridge/internal/store"
	"github.com/lox/pwsbridge/internal/wunderground"
)

var cli struct {
	Serve ServeCmd `cmd:"" default:"withargs" help:"Run the bridge loop, publishing observations to InfluxDB."`
	Fetch FetchCmd `cmd:"" help:"Fetch one station's current observation and print it as JSON."`
}

type ServeCmd struct {
	Stations []string      `env:"WU_STATIONS" required:"" help:"Weather Underground station IDs to poll."`
	Interval time.Duration `env:"WU_INTERVAL" default:"60s" help:"Polling interval."`
	Timeout  time.Duration `env:"WU_TIMEOUT" default:"10s" help:"HTTP timeout for upstream calls."`
	Unit     string        `env:"WU_UNIT" default:"m" help:"Unit family (m/metric or e/imperial)."`
	APIKey   string        `env:"WU_API_KEY" help:"Static API key; scraped from wunderground.com when unset."`

	InfluxURL      string `name:"influx-url" env:"INFLUX_HOST" default:"http://localhost:8086" help:"InfluxDB base URL."`
	InfluxDatabase string `env:"INFLUX_DATABASE" default:"weather" help:"InfluxDB database."`
	InfluxUsername string `env:"INFLUX_USERNAME" help:"InfluxDB username."`
	InfluxPassword string `env:"INFLUX_PASSWORD" help:"InfluxDB password."`

	Listen    string `env:"LISTEN_ADDR" default:":9090" help:"Address for /metrics and /health."`
	SpoolPath string `env:"SPOOL_PATH" default:"data/spool.db" help:"SQLite spool for failed writes; empty disables spooling."`
}

func (c *ServeCmd) Run() error {
	unit, err := wunderground.ParseUnit(c.Unit)
	if err != nil {
		return err
	}

	client := wunderground.New(wunderground.Options{Timeout: c.Timeout})

	writer, err := influx.NewWriter(influx.WriterOptions{
		URL:      c.InfluxURL,
		Database: c.InfluxDatabase,
		Username: c.InfluxUsername,
		Password: c.InfluxPassword,
		Timeout:  c.Timeout,
	})
	if err != nil {
		return err
	}

	var spool *store.Store
	if c.SpoolPath != "" {
		db, err := sql.Open("sqlite", c.SpoolPath)
		if err != nil {
			return fmt.Errorf("open spool: %w", err)
		}
		defer db.Close()

		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")

		spool = store.New(db)
		if err := spool.Migrate(); err != nil {
			return fmt.Errorf("migrate spool: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bridge.New(client, writer, spool, bridge.Config{
		Stations: c.Stations,
		Interval: c.Interval,
		Unit:     unit,
		APIKey:   c.APIKey,
	})
	go b.Run(ctx)

	log.Printf("starting metrics server on %s", c.Listen)
	return bridge.NewServer(c.Listen).Run(ctx)
}

type FetchCmd struct {
	StationID string        `arg:"" help:"ID of the station to fetch."`
	Unit      string        `env:"WU_UNIT" default:"m" help:"Unit family (m/metric or e/imperial)."`
	Timeout   time.Duration `env:"WU_TIMEOUT" default:"10s" help:"HTTP timeout for upstream calls."`
	APIKey    string        `env:"WU_API_KEY" help:"Static API key; scraped from wunderground.com when unset."`
}

func (c *FetchCmd) Run() error {
	unit, err := wunderground.ParseUnit(c.Unit)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := wunderground.New(wunderground.Options{Timeout: c.Timeout})

	apiKey := c.APIKey
	if apiKey == "" {
		if apiKey, err = client.FetchAPIKey(ctx); err != nil {
			return err
		}
	}

	raw, err := client.FetchObservation(ctx, apiKey, c.StationID, unit)
	if err != nil {
		return err
	}
	if raw == nil {
		fmt.Fprintln(os.Stderr, "no data for station", c.StationID)
		return nil
	}

	obs, err := wunderground.Convert(raw, c.StationID, unit)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("pwsbridge"),
		kong.Description("Republishes Weather Underground PWS observations to InfluxDB."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
