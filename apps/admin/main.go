package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/access"
	"github.com/ekklesia-app/ekklesia/core/readiness"
	logsvc "github.com/ekklesia-app/ekklesia/services/logger"
	"github.com/ekklesia-app/ekklesia/storage/database"
	sqlxrepos "github.com/ekklesia-app/ekklesia/storage/database/sqlx"
)

var logger *zap.SugaredLogger

func main() {
	conf := core.NewConfig()

	var err error
	logger, err = logsvc.NewZapLogger(conf)
	if err != nil {
		panic(err)
	}
	logger = logger.Named("ADMIN")
	defer func() { _ = logger.Sync() }()
	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	readiness.InitValidators(validate, translator)

	cells := sqlxrepos.NewCellDirectory(db)
	svc := readiness.NewService(
		sqlxrepos.NewCriteriaRepository(db),
		sqlxrepos.NewRecordRepository(db),
		cells,
		cells,
		access.AllowAll{},
		svcLogger,
		validate,
		translator,
		conf,
	)

	// start CLI
	cli := commandLine{
		db:    db,
		svc:   svc,
		conf:  conf,
		out:   os.Stdout,
		table: isTerminalFunc(int(os.Stdout.Fd())),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Errorf("error: %+v", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
