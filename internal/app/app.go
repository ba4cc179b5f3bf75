package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/adapter/googledrive"
	"github.com/BimaHajer/APIAutome/internal/adapter/memory"
	"github.com/BimaHajer/APIAutome/internal/auth"
	"github.com/BimaHajer/APIAutome/internal/config"
	"github.com/BimaHajer/APIAutome/internal/crypto"
	"github.com/BimaHajer/APIAutome/internal/files"
	"github.com/BimaHajer/APIAutome/internal/handler"
	"github.com/BimaHajer/APIAutome/internal/markdown"
	"github.com/BimaHajer/APIAutome/internal/model"
	"github.com/BimaHajer/APIAutome/internal/records"
	"github.com/BimaHajer/APIAutome/internal/records/dynamostore"
	"github.com/BimaHajer/APIAutome/internal/records/sqlstore"
	"github.com/BimaHajer/APIAutome/internal/secret"
	"github.com/BimaHajer/APIAutome/internal/session"
)

// uploadAccount is the identity of uploads made against the in-memory drive.
const uploadAccount = "uploads@apiautome.local"

// HybridProvider delegates demo credentials to the in-memory drive and every
// other credential to Google Drive.
type HybridProvider struct {
	googleProvider adapter.Provider
	memoryProvider adapter.Provider
}

func (h *HybridProvider) GetAdapter(ctx context.Context, cred *model.Credential) (adapter.DriveAPI, error) {
	if cred != nil && strings.HasPrefix(cred.AccessToken, memory.DemoTokenPrefix) {
		return h.memoryProvider.GetAdapter(ctx, cred)
	}
	return h.googleProvider.GetAdapter(ctx, cred)
}

// App holds the dependencies shared by the Lambda and the local server.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	authHandler     *handler.AuthHandler
	driveHandler    *handler.DriveHandler
	uploadHandler   *handler.UploadHandler
	documentHandler *handler.RecordHandler
	userHandler     *handler.RecordHandler

	apiGatewaySecret string
	db               *sql.DB
}

// NewLogger builds the process logger: text in dev mode, JSON otherwise.
func NewLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if !cfg.DevMode {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}

	// AWS is only needed for the DynamoDB backends and production secrets.
	var awsCfg aws.Config
	needsAWS := !cfg.DevMode ||
		cfg.CredentialStore == config.BackendDynamoDB ||
		cfg.RecordStore == config.BackendDynamoDB
	if needsAWS {
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		awsCfg = loaded
	}

	var dynamoClient *dynamodb.Client
	if cfg.CredentialStore == config.BackendDynamoDB || cfg.RecordStore == config.BackendDynamoDB {
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}

	// ---------- Secret Resolver ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		logger.Info("using environment secrets (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}

	secrets := secret.Load(ctx, secret.NewCache(resolver), secret.Names{
		GoogleClientSecret: cfg.GoogleClientSecretParam,
		JWTSecret:          cfg.JWTSecretParam,
		APIGatewaySecret:   cfg.APIGatewaySecretParam,
	}, logger)

	oauthConfig, err := newOAuthConfig(cfg, secrets.GoogleClientSecret)
	if err != nil {
		return nil, err
	}

	// ---------- Credentials ----------
	var encryptor crypto.Encryptor
	if cfg.DevMode {
		encryptor = crypto.NewMockEncryptor()
	} else {
		encryptor = crypto.NewKMSEncryptor(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	var creds auth.CredentialStore
	var states session.StateStore
	switch cfg.CredentialStore {
	case config.BackendDynamoDB:
		creds = auth.NewTokenStore(dynamoClient, cfg.UserTokensTable, encryptor)
		states = session.NewDynamoStateStore(dynamoClient, cfg.AuthStatesTable)
	case config.BackendFile:
		creds = auth.NewFileStore(cfg.TokenDir)
		states = session.NewMemoryStateStore()
	default:
		creds = auth.NewTokenStore(nil, cfg.UserTokensTable, encryptor)
		states = session.NewMemoryStateStore()
	}
	logger.WithField("credential_store", cfg.CredentialStore).Info("credential store ready")

	flow := auth.NewFlow(oauthConfig, states, creds,
		auth.WithStateTTL(cfg.StateTTL),
		auth.WithRefreshTimeout(cfg.RefreshTimeout),
		auth.WithLogger(logger),
	)

	// ---------- Drive ----------
	memDrive := memory.NewDrive()
	var provider adapter.Provider
	if cfg.DriveBackend == config.BackendMemory {
		provider = memory.NewProvider(memDrive, handler.DemoEmail)
	} else {
		provider = &HybridProvider{
			googleProvider: googledrive.NewProvider(""),
			memoryProvider: memory.NewProvider(memDrive, handler.DemoEmail),
		}
	}
	logger.WithField("drive_backend", cfg.DriveBackend).Info("drive backend ready")

	policy, err := files.ParseSharePolicy(cfg.SharePolicy)
	if err != nil {
		return nil, err
	}
	fileService := files.NewService(logger, policy, "")

	var uploadAPI adapter.DriveAPI
	switch {
	case cfg.ServiceAccountFile != "":
		sa, err := googledrive.NewServiceAccountAdapter(ctx, cfg.ServiceAccountFile)
		if err != nil {
			return nil, err
		}
		uploadAPI = sa
	case cfg.DriveBackend == config.BackendMemory:
		uploadAPI = memDrive.As(uploadAccount)
	default:
		logger.Warn("SERVICE_ACCOUNT_FILE is not set, uploads are disabled")
	}

	// ---------- Records ----------
	app := &App{cfg: cfg, logger: logger, apiGatewaySecret: secrets.APIGatewaySecret}

	var store records.Store
	switch cfg.RecordStore {
	case config.BackendDynamoDB:
		store = dynamostore.New(dynamoClient, cfg.RecordsTable)
	case config.BackendSQL:
		db, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := sqlstore.Migrate(ctx, db, cfg.DatabaseDriver, logger); err != nil {
			db.Close()
			return nil, err
		}
		app.db = db
		store = sqlstore.New(db)
	default:
		store = records.NewMemoryStore()
	}
	logger.WithField("record_store", cfg.RecordStore).Info("record store ready")

	renderer := markdown.NewRenderer(markdownOptions(cfg)...)
	sessions := handler.NewSessions(secrets.JWTSecret, cfg.DevMode)

	app.authHandler = handler.NewAuthHandler(flow, sessions, provider, fileService, logger)
	app.driveHandler = handler.NewDriveHandler(flow, sessions, provider, fileService, logger)
	app.uploadHandler = handler.NewUploadHandler(uploadAPI, fileService, cfg.UploadFolderID, logger)
	app.documentHandler = handler.NewRecordHandler(records.NewRepository(records.Document, store, renderer, logger), logger)
	app.userHandler = handler.NewRecordHandler(records.NewRepository(records.UserCustomer, store, renderer, logger), logger)
	return app, nil
}

// newOAuthConfig reads the OAuth client from the client-secret JSON file when
// one is configured, and from the client id and resolved secret otherwise.
func newOAuthConfig(cfg *config.Config, clientSecret string) (*oauth2.Config, error) {
	if cfg.GoogleClientSecretFile != "" {
		data, err := os.ReadFile(cfg.GoogleClientSecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret file: %w", err)
		}
		oc, err := google.ConfigFromJSON(data, auth.DefaultScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client secret file: %w", err)
		}
		oc.RedirectURL = cfg.GoogleRedirectURL
		return oc, nil
	}

	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: clientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       auth.DefaultScopes,
		Endpoint:     google.Endpoint,
	}, nil
}

func markdownOptions(cfg *config.Config) []markdown.Option {
	var opts []markdown.Option
	if cfg.MarkdownStyle != "" {
		opts = append(opts, markdown.WithStyle(cfg.MarkdownStyle))
	}
	if !cfg.MarkdownHardWraps {
		opts = append(opts, markdown.WithoutHardWraps())
	}
	return opts
}

// Close releases the database connection, if any.
func (app *App) Close() error {
	if app.db != nil {
		return app.db.Close()
	}
	return nil
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	resp := corsResponse(app.route(ctx, req), app.cfg.FrontendURL)

	app.logger.WithFields(logrus.Fields{
		"method":      req.HTTPMethod,
		"path":        req.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("request")
	return resp, nil
}

func (app *App) route(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	method := req.HTTPMethod

	// CORS Preflight
	if method == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
	}

	// Security: Verify Request Origin (CloudFront only)
	if !app.cfg.DevMode && (app.apiGatewaySecret == "" || handler.Header(req, "X-Origin-Verify") != app.apiGatewaySecret) {
		app.logger.WithField("path", req.Path).Warn("missing or invalid X-Origin-Verify header")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	switch path {
	case "/healthcheck/":
		return jsonStatus(http.StatusOK, `{"status":"ok"}`)
	case "/drive/auth/":
		if method == http.MethodGet {
			return must(app.authHandler.Begin(ctx, req))
		}
		return notAllowed(method)
	case "/drive/oauth2callback/":
		if method == http.MethodGet {
			return must(app.authHandler.Callback(ctx, req))
		}
		return notAllowed(method)
	case "/drive/logout/":
		if method == http.MethodPost {
			return must(app.authHandler.Logout(ctx, req))
		}
		return notAllowed(method)
	case "/drive/demo-login/":
		if !app.cfg.DevMode {
			break
		}
		if method == http.MethodGet {
			return must(app.authHandler.DemoLogin(ctx, req))
		}
		return notAllowed(method)
	case "/drive/list/":
		if method == http.MethodGet {
			return must(app.driveHandler.ListFiles(ctx, req))
		}
		return notAllowed(method)
	case "/drive/create/":
		if method == http.MethodPost {
			return must(app.driveHandler.CreateFile(ctx, req))
		}
		return notAllowed(method)
	case "/upload/":
		if method == http.MethodPost {
			return must(app.uploadHandler.Upload(ctx, req))
		}
		return notAllowed(method)
	case "/document-Add/":
		if method == http.MethodPost {
			return must(app.documentHandler.Create(ctx, req))
		}
		return notAllowed(method)
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")

	// /drive/{action}/{id}/
	if len(parts) == 3 && parts[0] == "drive" {
		req.PathParameters["id"] = parts[2]
		switch parts[1] {
		case "file":
			if method == http.MethodGet {
				return must(app.driveHandler.GetFile(ctx, req))
			}
			return notAllowed(method)
		case "update":
			if method == http.MethodGet {
				return must(app.driveHandler.UpdateForm(ctx, req))
			}
			if method == http.MethodPut {
				return must(app.driveHandler.UpdateFile(ctx, req))
			}
			return notAllowed(method)
		case "delete":
			if method == http.MethodDelete {
				return must(app.driveHandler.DeleteFile(ctx, req))
			}
			return notAllowed(method)
		case "download":
			if method == http.MethodGet {
				return must(app.driveHandler.Download(ctx, req))
			}
			return notAllowed(method)
		}
	}

	// /document-update/{id}/ and /document-Delete/{id}/
	if len(parts) == 2 {
		req.PathParameters["id"] = parts[1]
		switch parts[0] {
		case "document-update":
			if method == http.MethodPut || method == http.MethodPatch {
				return must(app.documentHandler.Update(ctx, req))
			}
			return notAllowed(method)
		case "document-Delete":
			if method == http.MethodDelete {
				return must(app.documentHandler.Delete(ctx, req))
			}
			return notAllowed(method)
		}
	}

	// /document/ and /user/ collections
	var rh *handler.RecordHandler
	switch parts[0] {
	case "document":
		rh = app.documentHandler
	case "user":
		rh = app.userHandler
	}
	if rh != nil {
		if len(parts) == 1 {
			switch method {
			case http.MethodGet:
				return must(rh.List(ctx, req))
			case http.MethodPost:
				return must(rh.Create(ctx, req))
			}
			return notAllowed(method)
		}
		if len(parts) == 2 {
			req.PathParameters["id"] = parts[1]
			switch method {
			case http.MethodGet:
				return must(rh.Get(ctx, req))
			case http.MethodPut, http.MethodPatch:
				return must(rh.Update(ctx, req))
			case http.MethodDelete:
				return must(rh.Delete(ctx, req))
			}
			return notAllowed(method)
		}
	}

	return jsonStatus(http.StatusNotFound, fmt.Sprintf(`{"detail":"Not found: %s %s"}`, method, strings.ReplaceAll(req.Path, `"`, "")))
}

func jsonStatus(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func notAllowed(method string) events.APIGatewayProxyResponse {
	return jsonStatus(http.StatusMethodNotAllowed, fmt.Sprintf(`{"detail":"Method \"%s\" not allowed."}`, method))
}

// corsResponse adds CORS headers to an API Gateway response.
func corsResponse(resp events.APIGatewayProxyResponse, origin string) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if origin == "" {
		origin = "http://localhost:3000"
	}
	resp.Headers["Access-Control-Allow-Origin"] = origin
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	resp.Headers["Access-Control-Expose-Headers"] = "Content-Disposition"
	return resp
}

// must unwraps a handler response, turning an error into a 500.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		return jsonStatus(http.StatusInternalServerError, `{"error":"Internal Server Error"}`)
	}
	return resp
}
