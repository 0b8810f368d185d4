package config

const (
	defaultDataDir            = "~/.local/share/capnote"
	defaultLogDir             = "~/.local/share/capnote/logs"
	defaultInboxDir           = "~/.local/share/capnote/inbox"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultStorageBaseURL     = "https://www.googleapis.com/drive/v3"
	defaultStorageFolder      = "Recordings"
	defaultStorageTokenPath   = "~/.config/capnote/storage_token"
	defaultStorageTimeout     = 120
	defaultTranscribeBaseURL  = "https://api.openai.com/v1"
	defaultTranscribeModel    = "whisper-1"
	defaultTranscribeTimeout  = 180
	defaultWorkers            = 2
	defaultTaskPollInterval   = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultRetryBackoffBase   = 30
	defaultRetryBackoffCap    = 3600
	defaultInboxPollInterval  = 10
	defaultConnectivityTTL    = 30
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			InboxDir: defaultInboxDir,
			APIBind:  defaultAPIBind,
		},
		Storage: Storage{
			BaseURL:        defaultStorageBaseURL,
			Folder:         defaultStorageFolder,
			TokenPath:      defaultStorageTokenPath,
			RequestTimeout: defaultStorageTimeout,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscribeBaseURL,
			Model:          defaultTranscribeModel,
			RequestTimeout: defaultTranscribeTimeout,
		},
		Recorder: Recorder{
			Extensions: []string{".m4a", ".mp3", ".wav", ".ogg", ".flac"},
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			TaskPollInterval:   defaultTaskPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			RetryBackoffBase:   defaultRetryBackoffBase,
			RetryBackoffCap:    defaultRetryBackoffCap,
			InboxPollInterval:  defaultInboxPollInterval,
			ConnectivityTTL:    defaultConnectivityTTL,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Captures:       true,
			Uploads:        true,
			Transcripts:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
