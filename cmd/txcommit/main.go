package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osdi23p228/txcommit/pkg/infra"
	"github.com/osdi23p228/txcommit/pkg/submit"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	fullCmd string
)

var (
	app = kingpin.New("txcommit", "Submit transactions to Hyperledger Fabric and wait for their commit")

	invoke            = app.Command("invoke", "Submit one transaction and wait for its outcome").Default()
	invokeConfigFile  = invoke.Flag("config", "Path of config file").Required().Short('c').String()
	invokeRequestFile = invoke.Flag("request", "Path of request file").Required().Short('f').String()

	bench            = app.Command("bench", "Submit the same request repeatedly and write a report")
	benchConfigFile  = bench.Flag("config", "Path of config file").Required().Short('c').String()
	benchRequestFile = bench.Flag("request", "Path of request file").Required().Short('f').String()
	benchTxNum       = bench.Flag("number", "Number of transactions, overrides txNum").Short('n').Int()

	version = app.Command("version", "Show version information")
)

func setLogLevel(logger *log.Logger) {
	logger.SetLevel(log.InfoLevel)
	if value, ok := os.LookupEnv("TXCOMMIT_LOGLEVEL"); ok {
		if level, err := log.ParseLevel(value); err == nil {
			logger.SetLevel(level)
		}
	}
}

func getLogger() *log.Logger {
	logger := log.New()
	setLogLevel(logger)
	return logger
}

func connect(ctx context.Context, configFile string, logger *log.Logger, reg prometheus.Registerer) (*infra.Config, *infra.Network, error) {
	config, err := infra.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "fail to load config")
	}

	identity, err := infra.LoadIdentity(config)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "fail to load identity")
	}

	dial := infra.NewDialer(config.DialTimeout, logger)
	network, err := infra.Connect(ctx, config, identity, dial, logger, submit.NewMetrics(reg))
	if err != nil {
		return nil, nil, errors.WithMessage(err, "fail to connect")
	}
	return config, network, nil
}

func runInvoke(ctx context.Context, logger *log.Logger) (bool, error) {
	req, err := infra.LoadRequestFromFile(*invokeRequestFile)
	if err != nil {
		return false, err
	}

	_, network, err := connect(ctx, *invokeConfigFile, logger, prometheus.NewRegistry())
	if err != nil {
		return false, err
	}
	defer network.Close()

	outcome := network.Submit(ctx, req)
	fmt.Println(outcome)
	return outcome.Kind == submit.Committed, nil
}

func runBench(ctx context.Context, logger *log.Logger) error {
	req, err := infra.LoadRequestFromFile(*benchRequestFile)
	if err != nil {
		return err
	}

	reg := infra.NewRegistry()
	config, network, err := connect(ctx, *benchConfigFile, logger, reg)
	if err != nil {
		return err
	}
	defer network.Close()

	if *benchTxNum > 0 {
		config.TxNum = *benchTxNum
	}

	if config.MetricsAddress != "" {
		server := infra.ServeMetrics(config.MetricsAddress, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Close(shutdownCtx)
		}()
	}

	progress, err := infra.Process(ctx, config, network, req, logger)
	if err != nil {
		return err
	}
	logger.Infof("%d of %d transactions committed, report written to %s", progress.Committed(), progress.Finished(), config.ReportPath)
	return nil
}

func main() {
	var err error
	logger := getLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fullCmd = kingpin.MustParse(app.Parse(os.Args[1:]))
	switch fullCmd {
	case invoke.FullCommand():
		var committed bool
		committed, err = runInvoke(ctx, logger)
		if err == nil && !committed {
			stop()
			os.Exit(1)
		}
	case bench.FullCommand():
		err = runBench(ctx, logger)
	case version.FullCommand():
		fmt.Print(infra.GetVersionInfo())
	default:
		err = errors.Errorf("Invalid command: %s", fullCmd)
	}

	if err != nil {
		stop()
		logger.Fatalln(err)
	}
}
