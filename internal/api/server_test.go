package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/miradorstack/mirador-pdm/internal/analysis"
	"github.com/miradorstack/mirador-pdm/internal/catalog"
	"github.com/miradorstack/mirador-pdm/internal/config"
	"github.com/miradorstack/mirador-pdm/internal/engine"
	"github.com/miradorstack/mirador-pdm/internal/models"
)

type stubEngine struct {
	lastAnalyze *AnalyzeRequest
}

func (s *stubEngine) BuildFeatures(_ context.Context, req *BuildFeaturesRequest) (*BuildFeaturesResponse, error) {
	return &BuildFeaturesResponse{Acquisitions: 2, Tables: []FeatureTableInfo{{Sensor: "A_ACC", Path: req.OutputDir + "/A_ACC.csv", Rows: 8}}}, nil
}

func (s *stubEngine) Analyze(_ context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	s.lastAnalyze = req
	if req.Algorithm == "" {
		return nil, status.Error(codes.InvalidArgument, "algorithm required")
	}
	return &AnalyzeResponse{Status: "ok", Valid: true, Report: &models.Report{Algorithm: req.Algorithm}}, nil
}

func (s *stubEngine) ResolveSensors(context.Context, *ResolveSensorsRequest) (*ResolveSensorsResponse, error) {
	return &ResolveSensorsResponse{AllValid: true, Paths: []string{"A_ACC.csv"}}, nil
}

func (s *stubEngine) Dispatch(_ context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	return &DispatchResponse{Flag: "NORMAL_CONVERSATION", ToolOutput: string(req.Intent)}, nil
}

func (s *stubEngine) HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "SERVING"}, nil
}

func startBufServer(t *testing.T, srv PDMEngineServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := NewServerWithListener(config.ServerConfig{GracefulTimeout: time.Second}, lis, srv)
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServerRoundTrip(t *testing.T) {
	stub := &stubEngine{}
	client := NewClient(startBufServer(t, stub))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	built, err := client.BuildFeatures(ctx, &BuildFeaturesRequest{OutputDir: "/tmp/features"})
	require.NoError(t, err)
	require.Equal(t, 2, built.Acquisitions)
	require.Equal(t, "/tmp/features/A_ACC.csv", built.Tables[0].Path)

	resp, err := client.Analyze(ctx, &AnalyzeRequest{Algorithm: "lr", Sensors: []SensorSelector{{Name: "A"}}})
	require.NoError(t, err)
	require.True(t, resp.Valid)
	require.Equal(t, "lr", resp.Report.Algorithm)
	require.Equal(t, []SensorSelector{{Name: "A"}}, stub.lastAnalyze.Sensors)

	_, err = client.Analyze(ctx, &AnalyzeRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	dispatched, err := client.Dispatch(ctx, &DispatchRequest{Intent: []byte(`{"category":"normal_conversation"}`)})
	require.NoError(t, err)
	require.JSONEq(t, `{"category":"normal_conversation"}`, dispatched.ToolOutput)

	health, err := client.HealthCheck(ctx, &HealthRequest{})
	require.NoError(t, err)
	require.Equal(t, "SERVING", health.Status)
}

func TestStandardHealthService(t *testing.T) {
	conn := startBufServer(t, &stubEngine{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestToSensorRequests(t *testing.T) {
	reqs, err := ToSensorRequests([]SensorSelector{{Name: "A", Type: "ACC"}, {Name: "B"}, {Type: "GYRO"}, {}})
	require.NoError(t, err)
	require.Equal(t, []models.SensorRequest{models.Exact("A", "ACC"), models.ByName("B"), models.ByType("GYRO"), models.AllSensors()}, reqs)

	_, err = ToSensorRequests([]SensorSelector{{Name: "A_ACC"}})
	require.Error(t, err)

	empty, err := ToSensorRequests(nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestResponseMapping(t *testing.T) {
	key := models.SensorKey{Name: "B", Type: "ACC"}
	other := models.SensorKey{Name: "A", Type: "ACC"}
	built := ToBuildFeaturesResponse(engine.BuildResult{
		Acquisitions: 3,
		Tables:       map[models.SensorKey]string{key: "/f/B_ACC.csv", other: "/f/A_ACC.csv"},
		Rows:         map[models.SensorKey]int{key: 4, other: 6},
	})
	require.False(t, built.Empty)
	require.Equal(t, "A_ACC", built.Tables[0].Sensor)
	require.Equal(t, 4, built.Tables[1].Rows)

	invalid := ToAnalyzeResponse(analysis.Outcome{Status: analysis.StatusInvalidSensors, Unresolved: []models.SensorRequest{models.ByType("GYRO")}}, "ignored")
	require.False(t, invalid.Valid)
	require.Empty(t, invalid.Summary)
	require.Equal(t, []SensorSelector{{Type: "GYRO"}}, invalid.Unresolved)

	resolved := ToResolveSensorsResponse(catalog.Resolution{AllValid: true})
	require.NotNil(t, resolved.Paths)
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{}
	data, err := c.Marshal(&SensorSelector{Name: "A"})
	require.NoError(t, err)
	var out SensorSelector
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, "A", out.Name)
	require.NoError(t, c.Unmarshal(nil, &out))
	require.Equal(t, CodecName, c.Name())
}
