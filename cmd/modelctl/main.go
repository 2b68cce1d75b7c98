// Command modelctl manages geostorm model artifacts.
//
// Usage:
//
//	modelctl push    -file model.json -name geomagnetic -store bolt -bolt-path geostorm.db
//	modelctl push    -file model.json -name geomagnetic -store redis -redis-addr localhost:6379
//	modelctl show    -name geomagnetic -store redis
//	modelctl predict -model model.json -file rows.csv
//	modelctl remote  -addr geostorm:50051 -file rows.csv
//	modelctl linear  -intercept -5 -weights bz_gsm=4,speed=-0.01 -out model.json
//
// push validates that the artifact decodes before uploading it. predict runs
// the batch pipeline offline and prints the rows as JSON; remote sends the
// same rows to a running server over gRPC. With no -file both read CSV from
// stdin. linear writes a linear artifact from hand-picked coefficients.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/grpcapi"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/models"
	"github.com/HatiCode/geostorm/pkg/pipeline"
	"github.com/HatiCode/geostorm/pkg/storage"
	geotls "github.com/HatiCode/geostorm/pkg/tls"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "push":
		err = push(ctx, args[1:], stdout)
	case "show":
		err = show(ctx, args[1:], stdout)
	case "predict":
		err = predict(ctx, args[1:], stdin, stdout)
	case "remote":
		err = remote(ctx, args[1:], stdin, stdout)
	case "linear":
		err = linear(args[1:], stdout)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: modelctl <push|show|predict|remote|linear> [flags]")
}

type storeFlags struct {
	kind          string
	redisAddr     string
	redisPassword string
	redisDB       int
	boltPath      string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.kind, "store", "bolt", "Artifact store: bolt or redis")
	fs.StringVar(&f.redisAddr, "redis-addr", "localhost:6379", "Redis server address")
	fs.StringVar(&f.redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	fs.IntVar(&f.redisDB, "redis-db", 0, "Redis database number")
	fs.StringVar(&f.boltPath, "bolt-path", "geostorm.db", "bbolt database file")
}

type closableStore interface {
	storage.Store
	Close() error
}

func (f *storeFlags) open() (closableStore, error) {
	switch f.kind {
	case "bolt":
		return storage.NewBoltStore(f.boltPath)
	case "redis":
		return storage.NewRedisStore(f.redisAddr, f.redisPassword, f.redisDB, 0)
	default:
		return nil, fmt.Errorf("invalid store %q (must be bolt or redis)", f.kind)
	}
}

func push(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	file := fs.String("file", "", "Artifact file to upload (required)")
	name := fs.String("name", "geomagnetic", "Artifact name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	m, err := models.Decode(data, features.Order)
	if err != nil {
		return fmt.Errorf("refusing to push invalid artifact: %w", err)
	}

	store, err := sf.open()
	if err != nil {
		return err
	}
	defer store.Close()

	a := storage.NewArtifact(*name, data, time.Now().UTC())
	if err := store.Put(ctx, a); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "pushed %s (%s, %d bytes, sha256 %s) to %s\n", a.Name, m.Name(), len(a.Data), a.Checksum, sf.kind)
	return nil
}

type artifactInfo struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Version    int       `json:"version"`
	Features   []string  `json:"features"`
	Trees      int       `json:"trees,omitempty"`
	Size       int       `json:"size"`
	Checksum   string    `json:"checksum"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func show(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("name", "geomagnetic", "Artifact name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := sf.open()
	if err != nil {
		return err
	}
	defer store.Close()

	a, found, err := store.GetLatest(ctx, *name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("artifact %q not found", *name)
	}
	if err := a.Verify(); err != nil {
		return err
	}

	h, err := models.ReadHeader(a.Data)
	if err != nil {
		return err
	}
	m, err := models.Decode(a.Data, features.Order)
	if err != nil {
		return fmt.Errorf("stored artifact does not decode: %w", err)
	}

	info := artifactInfo{
		Name:       a.Name,
		Kind:       h.Kind,
		Version:    h.Version,
		Features:   h.Features,
		Size:       len(a.Data),
		Checksum:   a.Checksum,
		UploadedAt: a.UploadedAt,
	}
	if te, ok := m.(*models.TreeEnsemble); ok {
		info.Trees = te.Trees()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func predict(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	modelPath := fs.String("model", "artifacts/geomagnetic_model.json", "Artifact file")
	file := fs.String("file", "", "CSV file with a header row (default: stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := inference.New(logger)
	if err := adapter.Load(ctx, inference.FileLoader{Path: *modelPath}); err != nil {
		return err
	}
	defer adapter.Close()

	recs, err := readRecords(*file, stdin)
	if err != nil {
		return err
	}

	rows, err := pipeline.New(adapter, nil, logger).RunBatch(ctx, recs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func readRecords(file string, stdin io.Reader) ([]features.Record, error) {
	if file == "" {
		return features.ReadCSV(stdin)
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return features.ReadCSV(f)
}

func remote(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("remote", flag.ContinueOnError)
	addr := fs.String("addr", "localhost:50051", "geostorm gRPC address")
	file := fs.String("file", "", "CSV file with a header row (default: stdin)")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-row request timeout")
	var tc geotls.Config
	fs.StringVar(&tc.CertFile, "tls-cert-file", "", "Client certificate; enables mTLS")
	fs.StringVar(&tc.KeyFile, "tls-key-file", "", "Client private key")
	fs.StringVar(&tc.CAFile, "tls-ca-file", "", "CA certificate for the server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tc.Enabled = tc.CertFile != ""

	creds, err := geotls.ClientCredentials(tc)
	if err != nil {
		return err
	}
	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("dial %s: %w", *addr, err)
	}
	defer conn.Close()
	client := grpcapi.NewClient(conn)

	recs, err := readRecords(*file, stdin)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(recs))
	for i, rec := range recs {
		callCtx, cancel := context.WithTimeout(ctx, *timeout)
		res, err := client.Predict(callCtx, rec)
		cancel()
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}

		row := make(map[string]any, len(rec)+len(res))
		maps.Copy(row, rec)
		maps.Copy(row, res)
		rows = append(rows, row)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func linear(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("linear", flag.ContinueOnError)
	intercept := fs.Float64("intercept", 0, "Intercept in nT")
	weights := fs.String("weights", "", "Comma-separated feature=weight pairs; unlisted features weigh 0")
	out := fs.String("out", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := parseWeights(*weights)
	if err != nil {
		return err
	}
	data, err := models.EncodeLinear(*intercept, w, features.Order)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err := fmt.Fprintln(stdout, string(data))
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func parseWeights(s string) ([]float64, error) {
	w := make([]float64, len(features.Order))
	if strings.TrimSpace(s) == "" {
		return w, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("weight %q must be feature=value", pair)
		}
		name = strings.TrimSpace(name)
		i := slices.Index(features.Order, name)
		if i < 0 {
			return nil, fmt.Errorf("unknown feature %q (must be one of %s)", name, strings.Join(features.Order, ", "))
		}
		f, err := features.ParseFloat(name, strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		w[i] = f
	}
	return w, nil
}
