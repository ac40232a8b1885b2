package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/marcioluisms/hotelly2-sub000/internal/logging"
)

// Dispatcher enqueues worker tasks. The queue delivers at-least-once; the
// worker's receipt table turns that into exactly-once effect.
type Dispatcher interface {
	// Enqueue schedules a POST to path on the worker with the given JSON
	// body. taskID is the deterministic name; a name collision means the
	// task was already enqueued and is success. A zero scheduleAt runs
	// immediately.
	Enqueue(ctx context.Context, taskID, path string, body any, scheduleAt time.Time) error
}

// CloudTasksDispatcher dispatches through Google Cloud Tasks with an OIDC
// token whose audience is the worker's canonical URL.
type CloudTasksDispatcher struct {
	client         *cloudtasks.Client
	queuePath      string
	workerBaseURL  string
	serviceAccount string
}

// NewCloudTasksDispatcher builds the dispatcher. workerBaseURL must be the
// canonical worker URL; it doubles as the OIDC audience and the verification
// on the worker side asserts exact string equality.
func NewCloudTasksDispatcher(ctx context.Context, project, location, queue, serviceAccount, workerBaseURL string) (*CloudTasksDispatcher, error) {
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: cloud tasks client: %w", err)
	}
	return &CloudTasksDispatcher{
		client:         client,
		queuePath:      fmt.Sprintf("projects/%s/locations/%s/queues/%s", project, location, queue),
		workerBaseURL:  workerBaseURL,
		serviceAccount: serviceAccount,
	}, nil
}

func (d *CloudTasksDispatcher) Close() error { return d.client.Close() }

func (d *CloudTasksDispatcher) Enqueue(ctx context.Context, taskID, path string, body any, scheduleAt time.Time) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("tasks: marshal payload: %w", err)
	}

	headers := map[string]string{
		"Content-Type":              "application/json",
		logging.HeaderEventSource:   "tasks",
		logging.HeaderCorrelationID: logging.CorrelationID(ctx),
	}

	task := &cloudtaskspb.Task{
		Name: fmt.Sprintf("%s/tasks/%s", d.queuePath, taskID),
		MessageType: &cloudtaskspb.Task_HttpRequest{
			HttpRequest: &cloudtaskspb.HttpRequest{
				Url:        d.workerBaseURL + path,
				HttpMethod: cloudtaskspb.HttpMethod_POST,
				Headers:    headers,
				Body:       payload,
				AuthorizationHeader: &cloudtaskspb.HttpRequest_OidcToken{
					OidcToken: &cloudtaskspb.OidcToken{
						ServiceAccountEmail: d.serviceAccount,
						Audience:            d.workerBaseURL,
					},
				},
			},
		},
	}
	if !scheduleAt.IsZero() {
		task.ScheduleTime = timestamppb.New(scheduleAt)
	}

	_, err = d.client.CreateTask(ctx, &cloudtaskspb.CreateTaskRequest{
		Parent: d.queuePath,
		Task:   task,
	})
	if status.Code(err) == codes.AlreadyExists {
		// Deterministic name collision: the logical event is already queued.
		zerolog.Ctx(ctx).Debug().Str("task_id", taskID).Msg("task already enqueued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("tasks: create task %s: %w", taskID, err)
	}
	return nil
}
