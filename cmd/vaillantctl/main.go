package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joshp123/vaillant2mqtt/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "platforms":
		platformsCmd(os.Args[2:])
		return
	case "devices":
		devicesCmd(os.Args[2:])
		return
	}

	addr := resolveGRPCAddr()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	daemon := rpcTarget{
		conn:   conn,
		source: grpcurl.DescriptorSourceFromServer(ctx, grpcreflect.NewClientAuto(ctx, conn)),
	}

	switch os.Args[1] {
	case "services":
		daemon.services()
	case "methods":
		daemon.methods(ctx, os.Args[2:])
	case "call":
		daemon.call(ctx, os.Args[2:])
	case "health":
		daemon.health(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

// rpcTarget wraps a reflection-capable connection to the daemon.
type rpcTarget struct {
	conn   *grpc.ClientConn
	source grpcurl.DescriptorSource
}

func (t rpcTarget) services() {
	services, err := grpcurl.ListServices(t.source)
	if err != nil {
		fatal("list services", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
}

func (t rpcTarget) methods(ctx context.Context, args []string) {
	if len(args) < 1 {
		fatal("methods", fmt.Errorf("missing service name"))
	}
	methods, err := grpcurl.ListMethods(t.source, args[0])
	if err != nil {
		fatal("list methods", err)
	}
	for _, method := range methods {
		fmt.Println(method)
	}
}

func (t rpcTarget) call(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("call", flag.ExitOnError)
	data := flags.String("data", "", "JSON request body")
	_ = flags.Parse(args)
	remaining := flags.Args()
	if len(remaining) < 1 {
		fatal("call", fmt.Errorf("missing method (service/method)"))
	}

	t.invoke(ctx, remaining[0], *data)
}

// health checks the daemon's standard gRPC health service.
func (t rpcTarget) health(ctx context.Context, args []string) {
	service := ""
	if len(args) > 0 {
		service = args[0]
	}

	payload := fmt.Sprintf(`{"service": %q}`, service)
	t.invoke(ctx, "grpc.health.v1.Health/Check", payload)
}

func (t rpcTarget) invoke(ctx context.Context, method, data string) {
	var reader io.Reader
	if data != "" {
		reader = strings.NewReader(data)
	} else if isStdinTerminal() {
		reader = strings.NewReader("{}")
	} else {
		reader = os.Stdin
	}

	parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, t.source, reader, grpcurl.FormatOptions{})
	if err != nil {
		fatal("parse request", err)
	}

	handler := grpcurl.NewDefaultEventHandler(os.Stdout, t.source, formatter, false)
	if err := grpcurl.InvokeRPC(ctx, t.source, t.conn, method, nil, handler, parser.Next); err != nil {
		fatal("invoke", err)
	}
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func resolveGRPCAddr() string {
	if value := os.Getenv("VAILLANT2MQTT_GRPC_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		cfg, err := config.Load(path)
		if err != nil {
			continue
		}
		if cfg.Core.GRPCAddr != "" {
			return cfg.Core.GRPCAddr
		}
	}
	return "localhost:9000"
}

func resolveHTTPAddr() string {
	if value := os.Getenv("VAILLANT2MQTT_HTTP_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		cfg, err := config.Load(path)
		if err != nil {
			continue
		}
		if cfg.Core.HTTPAddr != "" {
			return cfg.Core.HTTPAddr
		}
	}
	return "localhost:8080"
}

func configSearchPaths() []string {
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "vaillant2mqtt", "config.yaml"))
	}
	return paths
}

func usage() {
	fmt.Println("vaillantctl <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  platforms list")
	fmt.Println("  platforms describe <platform_id>")
	fmt.Println("  devices")
	fmt.Println("  services")
	fmt.Println("  methods <service>")
	fmt.Println("  call <service/method> --data '{}' (or pipe JSON via stdin)")
	fmt.Println("  health [service]")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
