// The worker command processes one submitted batch job and exits. It is
// intended for invocation by a scheduler or queue consumer that passes the
// job ID as the only argument.
package main

import (
	"context"
	"log"
	"os"

	"stockpulse-backend/internal/app"
	"stockpulse-backend/internal/config"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: worker <job-id>")
	}
	jobID := os.Args[1]

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Shutdown()

	if err := container.Worker.Process(ctx, jobID); err != nil {
		container.Logger.Error("job processing failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		container.Shutdown()
		os.Exit(1)
	}
}
