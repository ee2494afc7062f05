package runner

import (
	"context"
	"fmt"
	"strings"

	run "cloud.google.com/go/run/apiv2"
	rpb "cloud.google.com/go/run/apiv2/runpb"
	scheduler "cloud.google.com/go/scheduler/apiv1"
	spb "cloud.google.com/go/scheduler/apiv1/schedulerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// CloudRunRunner executes the downloader as a Cloud Run job and can keep a
// Cloud Scheduler trigger in step with the sync schedule. The job image is
// expected to contain the downloader program as its entrypoint.
type CloudRunRunner struct {
	ProjectID string
	Region    string
	Image     string
	JobID     string
	// Optional additional client options (e.g., custom credentials)
	ClientOptions []option.ClientOption
	// Optional service account email for Cloud Scheduler HTTP OAuth
	ServiceAccountEmail string
	Env                 map[string]string
}

func NewCloudRunRunner(projectID, region, image string) *CloudRunRunner {
	return &CloudRunRunner{ProjectID: projectID, Region: region, Image: image, JobID: "jpxsync-downloader"}
}

func (c *CloudRunRunner) jobName() string {
	return fmt.Sprintf("projects/%s/locations/%s/jobs/%s", c.ProjectID, c.Region, c.JobID)
}

func (c *CloudRunRunner) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.ProjectID, c.Region)
}

func (c *CloudRunRunner) ensureJob(ctx context.Context, client *run.JobsClient) error {
	name := c.jobName()
	if _, err := client.GetJob(ctx, &rpb.GetJobRequest{Name: name}); err != nil {
		if status.Code(err) != codes.NotFound {
			return err
		}

		var env []*rpb.EnvVar
		for k, v := range c.Env {
			env = append(env, &rpb.EnvVar{Name: k, Values: &rpb.EnvVar_Value{Value: v}})
		}

		job := &rpb.Job{
			Name: name,
			Template: &rpb.ExecutionTemplate{
				Template: &rpb.TaskTemplate{
					Containers: []*rpb.Container{
						{
							Image: c.Image,
							Env:   env,
						},
					},
					Retries: &rpb.TaskTemplate_MaxRetries{MaxRetries: 0},
					Timeout: &durationpb.Duration{Seconds: 30 * 60},
				},
			},
		}
		op, err := client.CreateJob(ctx, &rpb.CreateJobRequest{Parent: c.parent(), Job: job, JobId: c.JobID})
		if err != nil {
			return err
		}
		if _, err := op.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the downloader job and blocks until the execution finishes.
// Files land in the job's own volume, so FilesWritten stays empty here; the
// publisher diffs the data directory regardless.
func (c *CloudRunRunner) Run(ctx context.Context) (Result, error) {
	client, err := run.NewJobsClient(ctx, c.ClientOptions...)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	if err := c.ensureJob(ctx, client); err != nil {
		return Result{}, err
	}

	op, err := client.RunJob(ctx, &rpb.RunJobRequest{Name: c.jobName()})
	if err != nil {
		return Result{}, err
	}
	exec, err := op.Wait(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: exec.GetName()}, nil
}

func (c *CloudRunRunner) DeleteJob(ctx context.Context) error {
	client, err := run.NewJobsClient(ctx, c.ClientOptions...)
	if err != nil {
		return err
	}
	defer client.Close()
	op, err := client.DeleteJob(ctx, &rpb.DeleteJobRequest{Name: c.jobName()})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

// EnsureSchedule creates or updates the Cloud Scheduler job that fires the
// downloader on the sync cron spec.
func (c *CloudRunRunner) EnsureSchedule(ctx context.Context, spec string) error {
	sched, err := scheduler.NewCloudSchedulerClient(ctx, c.ClientOptions...)
	if err != nil {
		return err
	}
	defer sched.Close()

	parent := c.parent()
	jobName := fmt.Sprintf("%s/jobs/%s", parent, c.JobID)

	// GCP Cron supports 5-fields; map from 6-field by dropping seconds if present
	cronSpec := toFiveFieldCron(spec)

	// Target: HTTP call to Run Job API
	// POST https://run.googleapis.com/v2/projects/{project}/locations/{region}/jobs/{job}:run
	url := fmt.Sprintf("https://run.googleapis.com/v2/%s:run", c.jobName())
	httpTarget := &spb.HttpTarget{
		HttpMethod: spb.HttpMethod_POST,
		Uri:        url,
		AuthorizationHeader: &spb.HttpTarget_OidcToken{
			OidcToken: &spb.OidcToken{ServiceAccountEmail: c.ServiceAccountEmail},
		},
	}

	desired := &spb.Job{
		Name:        jobName,
		Schedule:    cronSpec,
		TimeZone:    "UTC",
		Target:      &spb.Job_HttpTarget{HttpTarget: httpTarget},
		Description: "Run JPX downloader job",
	}

	if _, err := sched.GetJob(ctx, &spb.GetJobRequest{Name: jobName}); err != nil {
		if status.Code(err) != codes.NotFound {
			return err
		}
		_, err := sched.CreateJob(ctx, &spb.CreateJobRequest{Parent: parent, Job: desired})
		return err
	}
	_, err = sched.UpdateJob(ctx, &spb.UpdateJobRequest{Job: desired})
	return err
}

func toFiveFieldCron(in string) string {
	fields := strings.Fields(in)
	if len(fields) == 6 {
		return strings.Join(fields[1:], " ")
	}
	return in
}
