package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/playbookrun/controller/common/logger"
)

func testLogFactory() logger.LogFactory {
	registry, err := logger.NewLogRegistry("")
	if err != nil {
		panic(err)
	}
	return logger.MakeLogrusLogFactoryStdOutPlain(registry)
}

func TestCreateStepJob_SetsBackoffAndDeadline(t *testing.T) {
	client := fake.NewSimpleClientset()
	adapter := NewK8sAdapter(client, testLogFactory())

	jobName, err := adapter.CreateStepJob(context.Background(), CreateJobRequest{
		RunID: "run-1", OrgID: "org-1", StepID: "step-1",
		Image: "registry.example.com/step-hello", Namespace: "playbooks",
		TimeoutSeconds: 60,
	})
	require.NoError(t, err)
	require.Equal(t, "step-run-1-step-1", jobName)

	job, err := client.BatchV1().Jobs("playbooks").Get(context.Background(), jobName, metav1.GetOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 0, *job.Spec.BackoffLimit)
	require.EqualValues(t, 60, *job.Spec.ActiveDeadlineSeconds)
	require.Equal(t, "/shared", job.Spec.Template.Spec.Containers[0].VolumeMounts[0].MountPath)
}

func TestWaitForJob_Succeeds(t *testing.T) {
	client := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "j1", Namespace: "ns"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	})
	adapter := NewK8sAdapter(client, testLogFactory())

	outcome, err := adapter.WaitForJob(context.Background(), "ns", "j1", time.Second, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded)
}

func TestWaitForJob_Fails(t *testing.T) {
	client := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "j1", Namespace: "ns"},
		Status: batchv1.JobStatus{
			Failed:     1,
			Conditions: []batchv1.JobCondition{{Type: batchv1.JobFailed, Message: "boom"}},
		},
	})
	adapter := NewK8sAdapter(client, testLogFactory())

	outcome, err := adapter.WaitForJob(context.Background(), "ns", "j1", time.Second, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.False(t, outcome.Succeeded)
	require.Equal(t, "boom", outcome.Message)
}

func TestJobPhase_ReportsFailureWithoutBlocking(t *testing.T) {
	client := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "j1", Namespace: "ns"},
		Status:     batchv1.JobStatus{Failed: 1},
	})
	adapter := NewK8sAdapter(client, testLogFactory())

	phase, err := adapter.JobPhase(context.Background(), "ns", "j1")
	require.NoError(t, err)
	require.True(t, phase.Failed)
}

func TestDeleteJob_ToleratesNotFound(t *testing.T) {
	client := fake.NewSimpleClientset()
	adapter := NewK8sAdapter(client, testLogFactory())
	require.NoError(t, adapter.DeleteJob(context.Background(), "ns", "missing"))
}

func TestResolveImage(t *testing.T) {
	img, err := ResolveImage("registry.example.com/hello", "")
	require.NoError(t, err)
	require.Equal(t, "registry.example.com/hello", img)

	img, err = ResolveImage("hello", "registry.example.com")
	require.NoError(t, err)
	require.Equal(t, "registry.example.com/step-hello", img)

	_, err = ResolveImage("hello", "")
	require.Error(t, err)
}
