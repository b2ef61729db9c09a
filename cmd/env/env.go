package env

// Prefix is the prefix of every environment variable read by the CLI
const Prefix = "DUTYRATES_"

const (
	DBURLSuffix            = "DB_URL"
	RedisURLSuffix         = "REDIS_URL"
	OpenRouterAPIKeySuffix = "OPENROUTER_API_KEY"
	AnthropicAPIKeySuffix  = "ANTHROPIC_API_KEY"
)

// Key returns the full environment variable name for the suffix
func Key(suffix string) string {
	return Prefix + suffix
}
