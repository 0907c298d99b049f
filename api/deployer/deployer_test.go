package deployer

import (
	"context"
	"testing"
	"time"

	"github.com/equinor/radix-common/utils/pointers"
	"github.com/equinor/radix-release-api/api/manifest"
	"github.com/equinor/radix-release-api/api/utils/transient"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	kubefake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

const (
	namespace   = "streamlit"
	serviceName = "streamlit-app"
	oldImage    = "registry.example.com/streamlit-app:old"
	newImage    = "registry.example.com/streamlit-app:abc123"
)

type services map[string]config.ServiceDefinition

func (s services) Get(serviceName string) (config.ServiceDefinition, bool) {
	def, ok := s[serviceName]
	return def, ok
}

func testServices() services {
	return services{serviceName: {Name: serviceName, Namespace: namespace, Deployment: serviceName, Containers: []string{serviceName}}}
}

type deploymentBuilder struct {
	deployment *appsv1.Deployment
}

func aDeployment(containers ...string) *deploymentBuilder {
	d := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: serviceName, Namespace: namespace, Generation: 2},
		Spec:       appsv1.DeploymentSpec{Replicas: pointers.Ptr[int32](2)},
		Status:     appsv1.DeploymentStatus{ObservedGeneration: 2, Replicas: 2, UpdatedReplicas: 2, AvailableReplicas: 2},
	}
	for _, name := range containers {
		d.Spec.Template.Spec.Containers = append(d.Spec.Template.Spec.Containers, corev1.Container{Name: name, Image: oldImage})
	}
	return &deploymentBuilder{deployment: d}
}

func (b *deploymentBuilder) withStatus(status appsv1.DeploymentStatus) *deploymentBuilder {
	b.deployment.Status = status
	return b
}

func (b *deploymentBuilder) build() *appsv1.Deployment {
	return b.deployment
}

func newTestDeployer(client *kubefake.Clientset) *Deployer {
	return New(testServices(), NewKubeControlPlane(client), WithRolloutTimeout(100*time.Millisecond), WithRolloutPollInterval(10*time.Millisecond))
}

func getImages(t *testing.T, client *kubefake.Clientset) map[string]string {
	d, err := client.AppsV1().Deployments(namespace).Get(context.Background(), serviceName, metav1.GetOptions{})
	require.NoError(t, err)
	images := map[string]string{}
	for _, c := range d.Spec.Template.Spec.Containers {
		images[c.Name] = c.Image
	}
	return images
}

func Test_Deploy_UpdatesImagesAndWaitsForRollout(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName, "sidecar").build())
	sut := newTestDeployer(client)

	err := sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{serviceName: newImage, "sidecar": oldImage}, getImages(t, client))
}

func Test_Deploy_UnknownContainerWritesNothing(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName).build())
	sut := newTestDeployer(client)

	err := sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{
		{Name: serviceName, ImageURI: newImage},
		{Name: "ghost", ImageURI: newImage},
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"ghost"}, validationErr.UnknownContainers)
	assert.Equal(t, map[string]string{serviceName: oldImage}, getImages(t, client))
	for _, action := range client.Actions() {
		assert.NotEqual(t, "patch", action.GetVerb())
	}
}

func Test_Deploy_MissingDeploymentOrService(t *testing.T) {
	sut := newTestDeployer(kubefake.NewSimpleClientset())
	var validationErr *ValidationError

	err := sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	assert.ErrorAs(t, err, &validationErr)

	err = sut.Deploy(context.Background(), "other-app", manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	assert.ErrorAs(t, err, &validationErr)

	err = sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{})
	assert.ErrorAs(t, err, &validationErr)
}

func Test_Deploy_RolloutTimeoutReportsPartialState(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName).withStatus(appsv1.DeploymentStatus{
		ObservedGeneration: 2, Replicas: 3, UpdatedReplicas: 1, AvailableReplicas: 2, UnavailableReplicas: 1,
	}).build())
	sut := newTestDeployer(client)

	err := sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	var rolloutErr *RolloutError
	require.ErrorAs(t, err, &rolloutErr)
	assert.Equal(t, int32(2), rolloutErr.Desired)
	assert.Equal(t, int32(1), rolloutErr.Updated)
	assert.Equal(t, int32(2), rolloutErr.Available)
	assert.Equal(t, int32(1), rolloutErr.Unavailable)
	assert.Equal(t, newImage, getImages(t, client)[serviceName], "no rollback of the partially applied revision")
}

func Test_Deploy_ProgressDeadlineExceeded(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName).withStatus(appsv1.DeploymentStatus{
		ObservedGeneration: 2, Replicas: 2, UpdatedReplicas: 1, AvailableReplicas: 1, UnavailableReplicas: 1,
		Conditions: []appsv1.DeploymentCondition{{Type: appsv1.DeploymentProgressing, Status: corev1.ConditionFalse, Reason: "ProgressDeadlineExceeded"}},
	}).build())
	sut := New(testServices(), NewKubeControlPlane(client), WithRolloutTimeout(time.Minute), WithRolloutPollInterval(10*time.Millisecond))

	err := sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	var rolloutErr *RolloutError
	require.ErrorAs(t, err, &rolloutErr)
	assert.Equal(t, "progress deadline exceeded", rolloutErr.Reason)
}

func Test_Deploy_ClusterUnavailableIsTransient(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName).build())
	client.PrependReactor("get", "deployments", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("apiserver restarting")
	})
	sut := newTestDeployer(client)

	err := sut.Deploy(context.Background(), serviceName, manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	assert.True(t, transient.Is(err), "got %v", err)
}

func Test_SetImages_RetriesOnConflict(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName).build())
	conflicts := 1
	client.PrependReactor("patch", "deployments", func(k8stesting.Action) (bool, runtime.Object, error) {
		if conflicts > 0 {
			conflicts--
			return true, nil, apierrors.NewConflict(appsv1.Resource("deployments"), serviceName, nil)
		}
		return false, nil, nil
	})
	sut := NewKubeControlPlane(client)

	err := sut.SetImages(context.Background(), testServices()[serviceName], manifest.DeploymentManifest{{Name: serviceName, ImageURI: newImage}})
	require.NoError(t, err)
	assert.Equal(t, newImage, getImages(t, client)[serviceName])
}

func Test_Replicas(t *testing.T) {
	client := kubefake.NewSimpleClientset(aDeployment(serviceName).build())
	sut := NewKubeControlPlane(client)
	service := testServices()[serviceName]

	replicas, err := sut.GetReplicas(context.Background(), service)
	require.NoError(t, err)
	assert.Equal(t, int32(2), replicas)

	require.NoError(t, sut.SetReplicas(context.Background(), service, 4))
	replicas, err = sut.GetReplicas(context.Background(), service)
	require.NoError(t, err)
	assert.Equal(t, int32(4), replicas)
	assert.Equal(t, oldImage, getImages(t, client)[serviceName])
}
