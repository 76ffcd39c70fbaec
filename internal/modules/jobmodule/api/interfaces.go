package api

import (
	"context"
	"io"

	"github.com/mantonx/videoclipper/internal/modules/jobmodule/history"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/service"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/settings"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// JobService is the business layer behind the job endpoints. It is
// implemented by *service.Service.
type JobService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (types.Job, error)
	Jobs() []types.Job
	Job(id string) (types.Job, error)
	Stats(ctx context.Context) service.Stats
	Settings(id string) (types.Settings, error)
	Options() settings.Options
	UpdateSettings(id string, patch types.SettingsPatch) (types.Settings, error)
	Process(ctx context.Context, id string) (types.Job, error)
	Cancel(id string) (types.Job, error)
	OpenDownload(ref string) (*service.Download, error)
	History(ctx context.Context, limit int) ([]history.JobRecord, error)
}
