package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shini559/Gaming-advisor-sub000/internal/domain/entity"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/messaging"
	"github.com/shini559/Gaming-advisor-sub000/internal/domain/valueobject"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/inbound"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockGameImageRepository mocks the game image repository interface.
type MockGameImageRepository struct {
	mock.Mock
}

func (m *MockGameImageRepository) Save(ctx context.Context, image *entity.GameImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockGameImageRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.GameImage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.GameImage), args.Error(1)
}

func (m *MockGameImageRepository) FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]*entity.GameImage, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.GameImage), args.Error(1)
}

func (m *MockGameImageRepository) FindByBatchIDAndStatus(
	ctx context.Context,
	batchID uuid.UUID,
	status valueobject.ImageStatus,
) ([]*entity.GameImage, error) {
	args := m.Called(ctx, batchID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.GameImage), args.Error(1)
}

func (m *MockGameImageRepository) FindStaleUploaded(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*entity.GameImage, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.GameImage), args.Error(1)
}

func (m *MockGameImageRepository) Update(ctx context.Context, image *entity.GameImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockGameImageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockImageBatchRepository mocks the image batch repository interface.
type MockImageBatchRepository struct {
	mock.Mock
}

func (m *MockImageBatchRepository) Save(ctx context.Context, batch *entity.ImageBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockImageBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ImageBatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ImageBatch), args.Error(1)
}

func (m *MockImageBatchRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.ImageBatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ImageBatch), args.Error(1)
}

func (m *MockImageBatchRepository) FindByGameID(
	ctx context.Context,
	gameID uuid.UUID,
	filters outbound.BatchFilters,
) ([]*entity.ImageBatch, int, error) {
	args := m.Called(ctx, gameID, filters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*entity.ImageBatch), args.Int(1), args.Error(2)
}

func (m *MockImageBatchRepository) Update(ctx context.Context, batch *entity.ImageBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockImageBatchRepository) ApplyProgress(
	ctx context.Context,
	batchID uuid.UUID,
	success bool,
) (*entity.ImageBatch, bool, error) {
	args := m.Called(ctx, batchID, success)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entity.ImageBatch), args.Bool(1), args.Error(2)
}

func (m *MockImageBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockVectorStorageRepository mocks the vector storage repository interface.
type MockVectorStorageRepository struct {
	mock.Mock
}

func (m *MockVectorStorageRepository) SaveVector(ctx context.Context, vector *entity.GameVector) error {
	args := m.Called(ctx, vector)
	return args.Error(0)
}

func (m *MockVectorStorageRepository) DeleteByImageID(ctx context.Context, imageID uuid.UUID) error {
	args := m.Called(ctx, imageID)
	return args.Error(0)
}

func (m *MockVectorStorageRepository) FindByImageID(
	ctx context.Context,
	imageID uuid.UUID,
) ([]*entity.GameVector, error) {
	args := m.Called(ctx, imageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.GameVector), args.Error(1)
}

func (m *MockVectorStorageRepository) SearchSimilar(
	ctx context.Context,
	queryEmbedding []float32,
	options outbound.VectorSearchOptions,
) ([]*entity.GameVector, error) {
	args := m.Called(ctx, queryEmbedding, options)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.GameVector), args.Error(1)
}

// MockObjectStorage mocks the object storage interface.
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStorage) Download(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStorage) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockObjectStorage) SignedURL(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

// MockImageAnalysisService mocks the image analysis service interface.
type MockImageAnalysisService struct {
	mock.Mock
}

func (m *MockImageAnalysisService) AnalyzeImage(
	ctx context.Context,
	imageData []byte,
	contentType string,
) (*outbound.ImageAnalysis, error) {
	args := m.Called(ctx, imageData, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.ImageAnalysis), args.Error(1)
}

func (m *MockImageAnalysisService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockImageAnalysisService) GenerateBatchEmbeddings(
	ctx context.Context,
	texts []string,
) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockImageAnalysisService) TestConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockJobQueue mocks the job queue interface.
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, job *messaging.ProcessingJob) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *MockJobQueue) Dequeue(ctx context.Context) (*messaging.ProcessingJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.ProcessingJob), args.Error(1)
}

func (m *MockJobQueue) MarkProcessing(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobQueue) MarkCompleted(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobQueue) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	args := m.Called(ctx, jobID, errorMessage)
	return args.Error(0)
}

func (m *MockJobQueue) Retry(ctx context.Context, job *messaging.ProcessingJob) (bool, error) {
	args := m.Called(ctx, job)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobQueue) GetStatus(ctx context.Context, jobID string) (valueobject.JobStatus, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(valueobject.JobStatus), args.Error(1)
}

func (m *MockJobQueue) QueueLength(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobQueue) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockJobQueue) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockBatchEventPublisher mocks the batch event publisher interface.
type MockBatchEventPublisher struct {
	mock.Mock
}

func (m *MockBatchEventPublisher) PublishBatchEvent(ctx context.Context, event outbound.BatchEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// JobProcessorTestSuite exercises the image job processor against mocked
// ports.
type JobProcessorTestSuite struct {
	suite.Suite

	imageRepo  *MockGameImageRepository
	batchRepo  *MockImageBatchRepository
	vectorRepo *MockVectorStorageRepository
	storage    *MockObjectStorage
	analysis   *MockImageAnalysisService
	jobQueue   *MockJobQueue
	publisher  *MockBatchEventPublisher
	processor  inbound.JobProcessor

	job     *messaging.ProcessingJob
	batchID uuid.UUID
	gameID  uuid.UUID
}

// SetupTest sets up the test suite.
func (suite *JobProcessorTestSuite) SetupTest() {
	suite.imageRepo = new(MockGameImageRepository)
	suite.batchRepo = new(MockImageBatchRepository)
	suite.vectorRepo = new(MockVectorStorageRepository)
	suite.storage = new(MockObjectStorage)
	suite.analysis = new(MockImageAnalysisService)
	suite.jobQueue = new(MockJobQueue)
	suite.publisher = new(MockBatchEventPublisher)

	suite.processor = NewImageJobProcessor(
		JobProcessorConfig{MaxConcurrentJobs: 2, JobTimeout: 30 * time.Second},
		suite.imageRepo,
		suite.batchRepo,
		suite.vectorRepo,
		suite.storage,
		suite.analysis,
		suite.jobQueue,
		suite.publisher,
		nil,
	)

	suite.gameID = uuid.New()
	suite.batchID = uuid.New()
	imageID := uuid.New()
	suite.job = messaging.NewProcessingJob(
		imageID,
		suite.gameID,
		&suite.batchID,
		"games/"+suite.gameID.String()+"/images/"+imageID.String()+".png",
		"rulebook-page-001.png",
		3,
	)
}

// TestJobProcessorTestSuite runs the job processor test suite.
func TestJobProcessorTestSuite(t *testing.T) {
	suite.Run(t, new(JobProcessorTestSuite))
}

// uploadedImage returns a stored image matching the suite's job.
func (suite *JobProcessorTestSuite) uploadedImage() *entity.GameImage {
	return entity.RestoreGameImage(
		suite.job.ImageID,
		suite.gameID,
		suite.batchID,
		suite.job.BlobPath,
		"https://storage.googleapis.com/test-bucket/"+suite.job.BlobPath,
		suite.job.Filename,
		2048,
		nil,
		valueobject.ImageStatusUploaded,
		"",
		0,
		time.Now(),
		nil,
		nil,
	)
}

// processingBatch returns a batch in flight with one image still pending.
func (suite *JobProcessorTestSuite) processingBatch(processed, failed int) *entity.ImageBatch {
	started := time.Now()
	return entity.RestoreImageBatch(
		suite.batchID,
		suite.gameID,
		2,
		processed,
		failed,
		valueobject.BatchStatusProcessing,
		0,
		3,
		time.Now(),
		&started,
		nil,
	)
}

// trackImageStatuses records the image status at every repository update.
func (suite *JobProcessorTestSuite) trackImageStatuses(statuses *[]valueobject.ImageStatus) {
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			image := args.Get(1).(*entity.GameImage)
			*statuses = append(*statuses, image.Status())
		}).
		Return(nil)
}

func (suite *JobProcessorTestSuite) TestProcessJob_NilJob() {
	err := suite.processor.ProcessJob(context.Background(), nil)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "job cannot be nil")
}

func (suite *JobProcessorTestSuite) TestProcessJob_InvalidPayload() {
	suite.job.SchemaVersion = 0

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "invalid job payload")
}

func (suite *JobProcessorTestSuite) TestProcessJob_CompleteWorkflow() {
	image := suite.uploadedImage()
	imageData := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x01, 0x02}

	var statuses []valueobject.ImageStatus
	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.trackImageStatuses(&statuses)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return(imageData, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, imageData, "image/png").Return(&outbound.ImageAnalysis{
		OCRText:     "Roll two dice and move that many spaces.",
		Description: "A rulebook page showing the movement phase.",
		Labels:      []string{"dice", "movement", "board"},
	}, nil)
	suite.analysis.On("GenerateBatchEmbeddings", mock.Anything, mock.AnythingOfType("[]string")).Return([][]float32{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0.6},
		{0.7, 0.8, 0.9},
	}, nil)

	var saved *entity.GameVector
	suite.vectorRepo.On("DeleteByImageID", mock.Anything, suite.job.ImageID).Return(nil)
	suite.vectorRepo.On("SaveVector", mock.Anything, mock.AnythingOfType("*entity.GameVector")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*entity.GameVector)
		}).
		Return(nil)

	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkCompleted", mock.Anything, suite.job.JobID).Return(nil)
	suite.batchRepo.On("ApplyProgress", mock.Anything, suite.batchID, true).
		Return(suite.processingBatch(1, 0), false, nil)
	suite.publisher.On("PublishBatchEvent", mock.Anything, mock.AnythingOfType("outbound.BatchEvent")).Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().NoError(err)
	suite.Equal([]valueobject.ImageStatus{
		valueobject.ImageStatusProcessing,
		valueobject.ImageStatusCompleted,
	}, statuses)

	suite.Require().NotNil(saved)
	suite.True(saved.HasOCR())
	suite.True(saved.HasDescription())
	suite.True(saved.HasLabels())
	suite.Equal("dice, movement, board", saved.LabelsContent())
	suite.Equal(suite.gameID, saved.GameID())
	suite.Equal(suite.job.ImageID, saved.ImageID())

	metrics := suite.processor.GetMetrics()
	suite.Equal(int64(1), metrics.TotalJobsProcessed)
	suite.Equal(int64(0), metrics.TotalJobsFailed)
	suite.Equal(int64(1), metrics.ImagesAnalyzed)
	suite.Equal(int64(3), metrics.EmbeddingsCreated)
	suite.Equal(int64(1), metrics.VectorsStored)
	suite.Equal(int64(len(imageData)), metrics.BytesDownloaded)

	suite.jobQueue.AssertNotCalled(suite.T(), "Retry", mock.Anything, mock.Anything)

	health := suite.processor.GetHealthStatus()
	suite.Equal(0, health.ActiveJobs)
	suite.True(health.IsReady)
}

func (suite *JobProcessorTestSuite) TestProcessJob_NoExtractableContent() {
	image := suite.uploadedImage()

	var statuses []valueobject.ImageStatus
	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.trackImageStatuses(&statuses)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(&outbound.ImageAnalysis{}, nil)
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkCompleted", mock.Anything, suite.job.JobID).Return(nil)
	suite.batchRepo.On("ApplyProgress", mock.Anything, suite.batchID, true).
		Return(suite.processingBatch(1, 0), false, nil)
	suite.publisher.On("PublishBatchEvent", mock.Anything, mock.Anything).Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	// A blank image still completes; only vector storage is skipped.
	suite.Require().NoError(err)
	suite.Equal([]valueobject.ImageStatus{
		valueobject.ImageStatusProcessing,
		valueobject.ImageStatusCompleted,
	}, statuses)

	suite.analysis.AssertNotCalled(suite.T(), "GenerateBatchEmbeddings", mock.Anything, mock.Anything)
	suite.vectorRepo.AssertNotCalled(suite.T(), "SaveVector", mock.Anything, mock.Anything)
	suite.vectorRepo.AssertNotCalled(suite.T(), "DeleteByImageID", mock.Anything, mock.Anything)

	metrics := suite.processor.GetMetrics()
	suite.Equal(int64(1), metrics.TotalJobsProcessed)
	suite.Equal(int64(0), metrics.VectorsStored)
}

func (suite *JobProcessorTestSuite) TestProcessJob_TerminalBatchPublishesCompletedEvent() {
	image := suite.uploadedImage()
	completed := time.Now()
	started := completed.Add(-time.Minute)
	terminalBatch := entity.RestoreImageBatch(
		suite.batchID,
		suite.gameID,
		2,
		2,
		0,
		valueobject.BatchStatusCompleted,
		0,
		3,
		completed.Add(-2*time.Minute),
		&started,
		&completed,
	)

	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(&outbound.ImageAnalysis{OCRText: "Setup: shuffle the deck."}, nil)
	suite.analysis.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).
		Return([][]float32{{0.1, 0.2}}, nil)
	suite.vectorRepo.On("DeleteByImageID", mock.Anything, suite.job.ImageID).Return(nil)
	suite.vectorRepo.On("SaveVector", mock.Anything, mock.Anything).Return(nil)
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkCompleted", mock.Anything, suite.job.JobID).Return(nil)
	suite.batchRepo.On("ApplyProgress", mock.Anything, suite.batchID, true).
		Return(terminalBatch, true, nil)

	var published []outbound.BatchEvent
	suite.publisher.On("PublishBatchEvent", mock.Anything, mock.AnythingOfType("outbound.BatchEvent")).
		Run(func(args mock.Arguments) {
			published = append(published, args.Get(1).(outbound.BatchEvent))
		}).
		Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().NoError(err)
	suite.Require().Len(published, 2)
	suite.Equal(outbound.BatchEventProgress, published[0].Type)
	suite.Require().NotNil(published[0].ImageID)
	suite.Equal(suite.job.ImageID, *published[0].ImageID)
	suite.Equal(outbound.BatchEventCompleted, published[1].Type)
	suite.Nil(published[1].ImageID)
	suite.Equal(valueobject.BatchStatusCompleted.String(), published[1].Status)
}

func (suite *JobProcessorTestSuite) TestProcessJob_AnalysisFailureRequeuesJob() {
	image := suite.uploadedImage()

	var statuses []valueobject.ImageStatus
	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.trackImageStatuses(&statuses)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("model overloaded"))
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkFailed", mock.Anything, suite.job.JobID, mock.AnythingOfType("string")).Return(nil)
	suite.jobQueue.On("Retry", mock.Anything, suite.job).Return(true, nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "failed to analyze image")

	// The attempt failed but the job was requeued, so the batch must not
	// count this image yet.
	suite.Equal([]valueobject.ImageStatus{
		valueobject.ImageStatusProcessing,
		valueobject.ImageStatusFailed,
		valueobject.ImageStatusRetrying,
	}, statuses)
	suite.batchRepo.AssertNotCalled(suite.T(), "ApplyProgress", mock.Anything, mock.Anything, mock.Anything)

	metrics := suite.processor.GetMetrics()
	suite.Equal(int64(1), metrics.TotalJobsFailed)
	suite.Equal(int64(1), metrics.TotalJobsRetried)
	suite.Equal(int64(0), metrics.TotalJobsProcessed)
}

func (suite *JobProcessorTestSuite) TestProcessJob_RetryBudgetExhaustedCountsBatchFailure() {
	suite.job.RetryCount = suite.job.MaxRetries
	image := suite.uploadedImage()
	failedAt := time.Now()
	started := failedAt.Add(-time.Minute)
	terminalBatch := entity.RestoreImageBatch(
		suite.batchID,
		suite.gameID,
		2,
		1,
		1,
		valueobject.BatchStatusPartiallyCompleted,
		3,
		3,
		failedAt.Add(-2*time.Minute),
		&started,
		&failedAt,
	)

	var statuses []valueobject.ImageStatus
	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.trackImageStatuses(&statuses)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("model overloaded"))
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkFailed", mock.Anything, suite.job.JobID, mock.AnythingOfType("string")).Return(nil)
	suite.jobQueue.On("Retry", mock.Anything, suite.job).Return(false, nil)
	suite.batchRepo.On("ApplyProgress", mock.Anything, suite.batchID, false).
		Return(terminalBatch, true, nil)
	suite.publisher.On("PublishBatchEvent", mock.Anything, mock.Anything).Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Equal([]valueobject.ImageStatus{
		valueobject.ImageStatusProcessing,
		valueobject.ImageStatusFailed,
	}, statuses)
	suite.batchRepo.AssertCalled(suite.T(), "ApplyProgress", mock.Anything, suite.batchID, false)

	metrics := suite.processor.GetMetrics()
	suite.Equal(int64(1), metrics.TotalJobsFailed)
	suite.Equal(int64(0), metrics.TotalJobsRetried)
}

func (suite *JobProcessorTestSuite) TestProcessJob_ImageNotFoundDropsJobWithoutRetry() {
	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(nil, nil)
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkFailed", mock.Anything, suite.job.JobID, mock.AnythingOfType("string")).Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "image record not found")

	suite.jobQueue.AssertNotCalled(suite.T(), "Retry", mock.Anything, mock.Anything)
	suite.batchRepo.AssertNotCalled(suite.T(), "ApplyProgress", mock.Anything, mock.Anything, mock.Anything)
	suite.imageRepo.AssertNotCalled(suite.T(), "Update", mock.Anything, mock.Anything)
}

func (suite *JobProcessorTestSuite) TestProcessJob_AlreadyCompletedImageDropsDuplicate() {
	completedAt := time.Now()
	startedAt := completedAt.Add(-time.Minute)
	image := entity.RestoreGameImage(
		suite.job.ImageID,
		suite.gameID,
		suite.batchID,
		suite.job.BlobPath,
		"https://storage.googleapis.com/test-bucket/"+suite.job.BlobPath,
		suite.job.Filename,
		2048,
		nil,
		valueobject.ImageStatusCompleted,
		"",
		0,
		completedAt.Add(-time.Hour),
		&startedAt,
		&completedAt,
	)

	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkCompleted", mock.Anything, suite.job.JobID).Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().NoError(err)
	suite.imageRepo.AssertNotCalled(suite.T(), "Update", mock.Anything, mock.Anything)
	suite.storage.AssertNotCalled(suite.T(), "Download", mock.Anything, mock.Anything)
	suite.batchRepo.AssertNotCalled(suite.T(), "ApplyProgress", mock.Anything, mock.Anything, mock.Anything)

	metrics := suite.processor.GetMetrics()
	suite.Equal(int64(0), metrics.TotalJobsProcessed)
	suite.Equal(int64(0), metrics.TotalJobsFailed)
}

func (suite *JobProcessorTestSuite) TestProcessJob_BatchEmbeddingFallback() {
	image := suite.uploadedImage()

	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).Return(&outbound.ImageAnalysis{
		OCRText:     "Victory: collect ten crowns.",
		Description: "A page listing win conditions.",
		Labels:      []string{"victory", "crowns"},
	}, nil)
	suite.analysis.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).
		Return(nil, errors.New("rate limited"))
	suite.analysis.On("GenerateEmbedding", mock.Anything, "Victory: collect ten crowns.").
		Return([]float32{0.1, 0.2}, nil)
	suite.analysis.On("GenerateEmbedding", mock.Anything, "A page listing win conditions.").
		Return(nil, errors.New("rate limited"))
	suite.analysis.On("GenerateEmbedding", mock.Anything, "victory, crowns").
		Return([]float32{0.3, 0.4}, nil)

	var saved *entity.GameVector
	suite.vectorRepo.On("DeleteByImageID", mock.Anything, suite.job.ImageID).Return(nil)
	suite.vectorRepo.On("SaveVector", mock.Anything, mock.AnythingOfType("*entity.GameVector")).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*entity.GameVector)
		}).
		Return(nil)

	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkCompleted", mock.Anything, suite.job.JobID).Return(nil)
	suite.batchRepo.On("ApplyProgress", mock.Anything, suite.batchID, true).
		Return(suite.processingBatch(1, 0), false, nil)
	suite.publisher.On("PublishBatchEvent", mock.Anything, mock.Anything).Return(nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	// The description pair is lost but the row still stores the other two.
	suite.Require().NoError(err)
	suite.Require().NotNil(saved)
	suite.True(saved.HasOCR())
	suite.False(saved.HasDescription())
	suite.True(saved.HasLabels())

	metrics := suite.processor.GetMetrics()
	suite.Equal(int64(2), metrics.EmbeddingsCreated)
}

func (suite *JobProcessorTestSuite) TestProcessJob_AllEmbeddingsFailFailsJob() {
	image := suite.uploadedImage()

	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(&outbound.ImageAnalysis{OCRText: "Some rules text."}, nil)
	suite.analysis.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).
		Return(nil, errors.New("embeddings unavailable"))
	suite.analysis.On("GenerateEmbedding", mock.Anything, mock.Anything).
		Return(nil, errors.New("embeddings unavailable"))
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkFailed", mock.Anything, suite.job.JobID, mock.AnythingOfType("string")).Return(nil)
	suite.jobQueue.On("Retry", mock.Anything, suite.job).Return(true, nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "failed to embed extracted content")
	suite.vectorRepo.AssertNotCalled(suite.T(), "SaveVector", mock.Anything, mock.Anything)
}

func (suite *JobProcessorTestSuite) TestProcessJob_DownloadFailure() {
	image := suite.uploadedImage()

	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).
		Return(nil, errors.New("bucket unreachable"))
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkFailed", mock.Anything, suite.job.JobID, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)
	suite.jobQueue.On("Retry", mock.Anything, suite.job).Return(true, nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "failed to download image")
	suite.analysis.AssertNotCalled(suite.T(), "AnalyzeImage", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *JobProcessorTestSuite) TestProcessJob_VectorStoreFailure() {
	image := suite.uploadedImage()

	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(&outbound.ImageAnalysis{OCRText: "Some rules text."}, nil)
	suite.analysis.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).
		Return([][]float32{{0.1, 0.2}}, nil)
	suite.vectorRepo.On("DeleteByImageID", mock.Anything, suite.job.ImageID).Return(nil)
	suite.vectorRepo.On("SaveVector", mock.Anything, mock.Anything).
		Return(errors.New("connection reset"))
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkFailed", mock.Anything, suite.job.JobID, mock.AnythingOfType("string")).Return(nil)
	suite.jobQueue.On("Retry", mock.Anything, suite.job).Return(true, nil)

	err := suite.processor.ProcessJob(context.Background(), suite.job)

	suite.Require().Error(err)
	suite.Contains(err.Error(), "failed to store vector")
}

func (suite *JobProcessorTestSuite) TestProcessJob_NilPublisherStillCompletes() {
	processor := NewImageJobProcessor(
		JobProcessorConfig{},
		suite.imageRepo,
		suite.batchRepo,
		suite.vectorRepo,
		suite.storage,
		suite.analysis,
		suite.jobQueue,
		nil,
		nil,
	)

	image := suite.uploadedImage()
	suite.imageRepo.On("FindByID", mock.Anything, suite.job.ImageID).Return(image, nil)
	suite.imageRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	suite.storage.On("Download", mock.Anything, suite.job.BlobPath).Return([]byte{0x01}, nil)
	suite.analysis.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(&outbound.ImageAnalysis{OCRText: "Some rules text."}, nil)
	suite.analysis.On("GenerateBatchEmbeddings", mock.Anything, mock.Anything).
		Return([][]float32{{0.1, 0.2}}, nil)
	suite.vectorRepo.On("DeleteByImageID", mock.Anything, suite.job.ImageID).Return(nil)
	suite.vectorRepo.On("SaveVector", mock.Anything, mock.Anything).Return(nil)
	suite.jobQueue.On("MarkProcessing", mock.Anything, suite.job.JobID).Return(nil)
	suite.jobQueue.On("MarkCompleted", mock.Anything, suite.job.JobID).Return(nil)
	suite.batchRepo.On("ApplyProgress", mock.Anything, suite.batchID, true).
		Return(suite.processingBatch(1, 0), false, nil)

	err := processor.ProcessJob(context.Background(), suite.job)

	suite.Require().NoError(err)
}

func (suite *JobProcessorTestSuite) TestGetHealthStatus_InitialState() {
	health := suite.processor.GetHealthStatus()

	suite.True(health.IsReady)
	suite.Equal(0, health.ActiveJobs)
	suite.Equal(int64(0), health.CompletedJobs)
	suite.Equal(int64(0), health.FailedJobs)
}

func TestPageNumberFromMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		want     *int
	}{
		{name: "missing key", metadata: map[string]string{}, want: nil},
		{name: "nil map", metadata: nil, want: nil},
		{name: "valid page", metadata: map[string]string{"page_number": "12"}, want: intPtr(12)},
		{name: "non numeric", metadata: map[string]string{"page_number": "twelve"}, want: nil},
		{name: "zero page", metadata: map[string]string{"page_number": "0"}, want: nil},
		{name: "negative page", metadata: map[string]string{"page_number": "-3"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pageNumberFromMetadata(tt.metadata)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil page number, got %d", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected page number %d, got nil", *tt.want)
			}
			if *got != *tt.want {
				t.Fatalf("expected page number %d, got %d", *tt.want, *got)
			}
		})
	}
}

func intPtr(n int) *int {
	return &n
}
