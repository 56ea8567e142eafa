package domain

// ConfigurationType classifies an extracted configuration item.
type ConfigurationType string

// Configuration item types.
const (
	ConfigTypeEnvVar           ConfigurationType = "env_var"
	ConfigTypeAPIEndpoint      ConfigurationType = "api_endpoint"
	ConfigTypeDatabaseSetting  ConfigurationType = "database_setting"
	ConfigTypeFrontendConfig   ConfigurationType = "frontend_config"
	ConfigTypeDeploymentConfig ConfigurationType = "deployment_config"
)

// IsValid checks if the configuration type is valid.
func (t ConfigurationType) IsValid() bool {
	switch t {
	case ConfigTypeEnvVar, ConfigTypeAPIEndpoint, ConfigTypeDatabaseSetting,
		ConfigTypeFrontendConfig, ConfigTypeDeploymentConfig:
		return true
	}
	return false
}

// ConfigurationItem is a potential failure source extracted from the knowledge
// corpus. Items are derived transiently during analysis and not persisted.
type ConfigurationItem struct {
	Type            ConfigurationType
	Name            string
	Description     string
	Location        string
	PotentialIssues []string
	FixStrategies   []string
}
