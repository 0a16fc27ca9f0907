package models

// S3Credentials holds static credentials for the S3-compatible backend.
// Empty AccessKeyID means the default AWS credential chain is used.
type S3Credentials struct {
	AccessKeyID  string `json:"accessKey" mapstructure:"access_key"`
	SecretKey    string `json:"secretKey" mapstructure:"secret_key"`
	SessionToken string `json:"sessionToken" mapstructure:"session_token"`
}

// AzureCredentials holds credentials for the Azure Blob backend.
type AzureCredentials struct {
	SASToken         string `json:"sasToken" mapstructure:"sas_token"`
	ConnectionString string `json:"connectionString" mapstructure:"connection_string"`
}

// StorageInfo describes where a direct-to-storage backend keeps blobs.
type StorageInfo struct {
	StorageType        string             `json:"storageType" mapstructure:"type"` // "s3" or "azure"
	ConnectionSettings ConnectionSettings `json:"connectionSettings" mapstructure:",squash"`
}

// ConnectionSettings represents storage connection details
type ConnectionSettings struct {
	Region      string `json:"region" mapstructure:"region"`            // AWS region (S3)
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`        // custom S3 endpoint (minio, R2, ...)
	Container   string `json:"container" mapstructure:"container"`      // S3 bucket or Azure container
	PathBase    string `json:"pathBase" mapstructure:"path_base"`       // key prefix for stored blobs
	AccountName string `json:"accountName" mapstructure:"account_name"` // Azure storage account name
	PathStyle   bool   `json:"pathStyle" mapstructure:"path_style"`     // S3 path-style addressing
}
