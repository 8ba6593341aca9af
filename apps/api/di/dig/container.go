package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/ekklesia-app/ekklesia/apps/api/echo"
	"github.com/ekklesia-app/ekklesia/core"
	"github.com/ekklesia-app/ekklesia/core/access"
	"github.com/ekklesia-app/ekklesia/core/readiness"
	logsvc "github.com/ekklesia-app/ekklesia/services/logger"
	"github.com/ekklesia-app/ekklesia/storage/database"
	sqlxrepos "github.com/ekklesia-app/ekklesia/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZapLogger(conf *core.Config) *zap.SugaredLogger {
	logger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatal(errors.Wrap(err, "building zap logger"))
	}
	return logger
}

func newLogger(conf *core.Config, zl *zap.SugaredLogger) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("API"), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config, zl *zap.SugaredLogger) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("DB"), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	readiness.InitValidators(validate, translator)
	return validate
}

func newAuthorizer() access.Authorizer {
	return access.NewRoleAuthorizer()
}

func newServer(conf *core.Config, logger core.Logger, svc *readiness.Service) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{Conf: conf, Logger: logger, ReadinessSvc: svc}, nil)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewCriteriaRepository, dig.As(new(readiness.CriteriaRepository))))
	must(c.Provide(sqlxrepos.NewRecordRepository, dig.As(new(readiness.RecordRepository))))
	must(c.Provide(sqlxrepos.NewCellDirectory, dig.As(new(readiness.CellDirectory), new(readiness.MetricsCollector))))
	must(c.Provide(newAuthorizer))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(readiness.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
