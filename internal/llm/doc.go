// Package llm — минимальный клиент OpenAI-совместимого HTTP API.
//
// Используется LLM и интеграционными задачами (llm, web_search,
// file_upload, file_search, vector_store_management, image_generation).
// Ошибки с кодом 429 и 5xx считаются временными, см. IsRetryable.
package llm
