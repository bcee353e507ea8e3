package cluster

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/common/logger"
)

const (
	ttlSecondsAfterFinished int32 = 300
	scratchVolumeName             = "scratch"
	scratchMountPath              = "/shared"
)

var resourceTiers = map[ResourceTier]corev1.ResourceRequirements{
	ResourceTierDefault: {
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("250m"),
			corev1.ResourceMemory: resource.MustParse("256Mi"),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("1"),
			corev1.ResourceMemory: resource.MustParse("1Gi"),
		},
	},
	ResourceTierHeavy: {
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("1"),
			corev1.ResourceMemory: resource.MustParse("2Gi"),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("4"),
			corev1.ResourceMemory: resource.MustParse("8Gi"),
		},
	},
}

// K8sAdapter is the production Adapter, backed by a k8s.io/client-go clientset.
type K8sAdapter struct {
	client kubernetes.Interface
	log    logger.Log
}

func NewK8sAdapter(client kubernetes.Interface, logFactory logger.LogFactory) *K8sAdapter {
	return &K8sAdapter{client: client, log: logFactory("cluster-adapter")}
}

func (a *K8sAdapter) CreateStepJob(ctx context.Context, req CreateJobRequest) (string, error) {
	jobName := fmt.Sprintf("step-%s-%s", req.RunID, req.StepID)
	if req.JobNameSuffix != "" {
		jobName = fmt.Sprintf("%s-%s", jobName, req.JobNameSuffix)
	}
	backoffLimit := int32(0)
	ttl := ttlSecondsAfterFinished

	envVars := []corev1.EnvVar{
		{Name: "RUN_ID", Value: req.RunID},
		{Name: "ORG_ID", Value: req.OrgID},
		{Name: "STEP_ID", Value: req.StepID},
		{Name: "NAMESPACE", Value: req.Namespace},
	}
	for k, v := range req.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	tier, ok := resourceTiers[req.ResourceTier]
	if !ok {
		tier = resourceTiers[ResourceTierDefault]
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: req.Namespace,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			ActiveDeadlineSeconds:   &req.TimeoutSeconds,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"job-name": jobName, "app": "playbook-step"},
				},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: req.ServiceAccount,
					Containers: []corev1.Container{
						{
							Name:      "step",
							Image:     req.Image,
							Env:       envVars,
							Resources: tier,
							VolumeMounts: []corev1.VolumeMount{
								{Name: scratchVolumeName, MountPath: scratchMountPath},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: scratchVolumeName,
							VolumeSource: corev1.VolumeSource{
								EmptyDir: &corev1.EmptyDirVolumeSource{},
							},
						},
					},
				},
			},
		},
	}

	_, err := a.client.BatchV1().Jobs(req.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			// A duplicate webhook delivery or controller retry asked for the same Job
			// twice; the Job from the first attempt is what should run, so this is success.
			return jobName, nil
		}
		return "", gerror.NewErrInternal().Wrap(err).EDetail("jobName", jobName)
	}
	return jobName, nil
}

func (a *K8sAdapter) WaitForJob(ctx context.Context, namespace, jobName string, timeout, pollInterval time.Duration, onPoll func(elapsed time.Duration)) (JobOutcome, error) {
	deadline := time.Now().Add(timeout)
	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := a.client.BatchV1().Jobs(namespace).Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			return JobOutcome{}, gerror.NewErrInternal().Wrap(err).EDetail("jobName", jobName)
		}
		if outcome, done := jobOutcome(job); done {
			return outcome, nil
		}
		if onPoll != nil {
			onPoll(time.Since(start))
		}
		if time.Now().After(deadline) {
			return JobOutcome{Succeeded: false, Message: "timed out waiting for job"}, nil
		}
		select {
		case <-ctx.Done():
			return JobOutcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *K8sAdapter) JobPhase(ctx context.Context, namespace, jobName string) (JobPhase, error) {
	job, err := a.client.BatchV1().Jobs(namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return JobPhase{}, nil
		}
		return JobPhase{}, gerror.NewErrInternal().Wrap(err).EDetail("jobName", jobName)
	}
	outcome, done := jobOutcome(job)
	if !done {
		return JobPhase{}, nil
	}
	return JobPhase{Succeeded: outcome.Succeeded, Failed: !outcome.Succeeded, Message: outcome.Message}, nil
}

func jobOutcome(job *batchv1.Job) (JobOutcome, bool) {
	if job.Status.Succeeded >= 1 {
		return JobOutcome{Succeeded: true, Message: "job succeeded"}, true
	}
	if job.Status.Failed >= 1 {
		msg := "job failed"
		for _, c := range job.Status.Conditions {
			if c.Type == batchv1.JobFailed {
				msg = c.Message
				break
			}
		}
		return JobOutcome{Succeeded: false, Message: msg}, true
	}
	return JobOutcome{}, false
}

func (a *K8sAdapter) DeleteJob(ctx context.Context, namespace, jobName string) error {
	propagation := metav1.DeletePropagationForeground
	err := a.client.BatchV1().Jobs(namespace).Delete(ctx, jobName, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !apierrors.IsNotFound(err) {
		return gerror.NewErrInternal().Wrap(err).EDetail("jobName", jobName)
	}
	return nil
}

func (a *K8sAdapter) DeleteConfigMap(ctx context.Context, namespace, name string) error {
	err := a.client.CoreV1().ConfigMaps(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return gerror.NewErrInternal().Wrap(err).EDetail("configMap", name)
	}
	return nil
}
