package rollup

import (
	"go.uber.org/fx"
)

var Module = fx.Module("rollup.service",
	fx.Provide(NewService),
)

// SchedulerModule runs the nightly enqueue loop in the API binary.
var SchedulerModule = fx.Module("rollup.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

// WorkerModule registers the task handlers in the worker binary.
var WorkerModule = fx.Module("rollup.worker",
	fx.Invoke(RegisterHandlers),
)
