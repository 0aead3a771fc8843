package config

// DefaultConfigYAML is written by `aether init`. Values left out fall back to
// the loader defaults.
const DefaultConfigYAML = `# Aether configuration
#
# Environment variables override file values with the AETHER_ prefix,
# e.g. AETHER_SERVER_PORT=8080. API keys may also come from
# OPENROUTER_API_KEY and GEMINI_API_KEY.

log:
  level: info
  # auto, text or json
  format: auto

server:
  host: localhost
  port: 3001
  cors_origins:
    - http://localhost:3000
    - http://localhost:5173
  max_upload_bytes: 10485760
  # 0 = unbounded
  max_concurrent_sessions: 0
  heartbeat: 15s
  event_buffer: 64
  shutdown_timeout: 30s

inference:
  providers:
    openrouter:
      base_url: https://openrouter.ai/api/v1/chat/completions
      referer: http://localhost:3000
      title: Aether Debate App
      timeout: 2m
      # Models that accept image input. Others get a text placeholder.
      vision_models: []
      # 0 disables client-side throttling
      requests_per_minute: 0
    gemini:
      # Set api_key for the Gemini API, or project and location for Vertex AI.
      project: ""
      location: ""
      requests_per_minute: 0

  retry:
    # Total attempts per call
    max_retries: 3
    rate_limit_base: 5s
    rate_limit_step: 5s
    transient_base: 1s
    max_backoff: 60s
    jitter: 0

  roles:
    analyst:
      provider: openrouter
      model: openrouter/auto
      temperature: 0.2
      max_output_tokens: 2000
    advocate:
      provider: openrouter
      model: openrouter/auto
      temperature: 0.7
      max_output_tokens: 2000
    skeptic:
      provider: openrouter
      model: openrouter/auto
      temperature: 0.7
      max_output_tokens: 2000
    scribe:
      provider: openrouter
      model: openrouter/auto
      temperature: 0.3
      max_output_tokens: 2000

pipeline:
  factor_delay: 3s
  call_delay: 2s
  synthesis_delay: 8s
  max_factors: 5
  max_image_factors: 3
  # Characters of document text per role, 0 = whole document
  excerpts:
    analyst: 0
    advocate: 1500
    skeptic: 1500
    scribe: 1000

session:
  # memory or sqlite
  backend: memory
  path: .aether/sessions.db
  # 0 keeps sessions until deleted
  retention: 0s
  sweep_interval: 10m
`
