package notifications

import (
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/internal/config"
)

// Module wires the notification queue, dispatcher, and worker.
var Module = fx.Module("notifications",
	fx.Provide(
		NewJobsService,
		NewTemplates,
		NewSender,
		NewDispatcher,
		NewWorker,
	),
	fx.Invoke(registerWorker),
)

func registerWorker(lc fx.Lifecycle, worker *Worker, cfg *config.Config) {
	if !cfg.Email.WorkerEnabled {
		return
	}
	lc.Append(fx.StartStopHook(worker.Start, worker.Stop))
}
