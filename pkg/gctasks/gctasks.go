package gctasks

import (
	"context"
	"fmt"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Client schedules one-shot HTTP callbacks through Google Cloud Tasks. The
// booking service uses it to call itself back at an order's hold deadline.
type Client interface {
	CreateTask(queueID string, request Request) error
	DeferCreateTaskInTime(queueID string, request Request, schedule time.Time) error
	Close() error
}

type Request struct {
	URL    string
	Method cloudtaskspb.HttpMethod
	Header map[string]string
	Body   []byte
}

type tasksClient struct {
	logger    *logrus.Logger
	projectID string
	location  string
	client    *cloudtasks.Client
}

func NewGCTasks(logger *logrus.Logger, projectID, location string, credsJSON []byte) Client {
	c, err := cloudtasks.NewClient(context.Background(), option.WithCredentialsJSON(credsJSON))
	if err != nil {
		logger.WithField("object", "gctasks").Error(err)
		return nil
	}

	return &tasksClient{
		logger:    logger,
		projectID: projectID,
		location:  location,
		client:    c,
	}
}

func (tc *tasksClient) queuePath(queueID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", tc.projectID, tc.location, queueID)
}

func (tc *tasksClient) buildTask(request Request) *cloudtaskspb.Task {
	return &cloudtaskspb.Task{
		MessageType: &cloudtaskspb.Task_HttpRequest{
			HttpRequest: &cloudtaskspb.HttpRequest{
				Url:        request.URL,
				HttpMethod: request.Method,
				Headers:    request.Header,
				Body:       request.Body,
			},
		},
	}
}

// CreateTask implements Client.
func (tc *tasksClient) CreateTask(queueID string, request Request) error {
	_, err := tc.client.CreateTask(context.Background(), &cloudtaskspb.CreateTaskRequest{
		Parent: tc.queuePath(queueID),
		Task:   tc.buildTask(request),
	})
	if err != nil {
		tc.logger.WithFields(logrus.Fields{
			"object":  "gctasks",
			"queueId": queueID,
		}).Error(err)
		return err
	}

	return nil
}

// DeferCreateTaskInTime implements Client.
func (tc *tasksClient) DeferCreateTaskInTime(queueID string, request Request, schedule time.Time) error {
	task := tc.buildTask(request)
	task.ScheduleTime = timestamppb.New(schedule)

	_, err := tc.client.CreateTask(context.Background(), &cloudtaskspb.CreateTaskRequest{
		Parent: tc.queuePath(queueID),
		Task:   task,
	})
	if err != nil {
		tc.logger.WithFields(logrus.Fields{
			"object":   "gctasks",
			"queueId":  queueID,
			"schedule": schedule.Format(time.RFC3339),
		}).Error(err)
		return err
	}

	return nil
}

// Close implements Client.
func (tc *tasksClient) Close() error {
	return tc.client.Close()
}
