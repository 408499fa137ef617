// Command familydir-stream is the Lambda subscribed to the Members table
// stream. It appends one change token per delivered batch.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/Kapral67/FamilyDirectory-sub001/config"
	"github.com/Kapral67/FamilyDirectory-sub001/internal/app"
	"github.com/Kapral67/FamilyDirectory-sub001/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config: load failed", "error", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.LogLevel, "json")

	if cfg.DirectAppend {
		// Both paths appending would record every change twice.
		log.Warn("FAMILYDIR_DIRECT_APPEND is set; the engine and the stream will both append tokens")
	}

	application, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("app: init failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(application.StreamHandler().HandleMemberChanges)
}
