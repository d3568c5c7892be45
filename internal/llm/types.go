package llm

import "io"

// Message — сообщение chat completion.
type Message struct {
	Role    string `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

// ChatRequest — запрос chat completion.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Usage — расход токенов.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse — ответ chat completion.
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Tool — инструмент Responses API.
type Tool struct {
	Type              string         `json:"type"`
	SearchContextSize string         `json:"search_context_size,omitempty"`
	UserLocation      map[string]any `json:"user_location,omitempty"`
	VectorStoreIDs    []string       `json:"vector_store_ids,omitempty"`
	MaxNumResults     int            `json:"max_num_results,omitempty"`
}

// ResponseRequest — запрос Responses API.
type ResponseRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Tools []Tool `json:"tools,omitempty"`
}

// ResponseResult — текст ответа и ссылки из аннотаций.
type ResponseResult struct {
	Text      string
	Citations []string
}

// ImageRequest — запрос генерации изображения.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	N              int    `json:"n,omitempty"`
}

// Image — сгенерированное изображение.
type Image struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// File — загруженный файл.
type File struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Purpose   string `json:"purpose"`
}

// FileUpload — параметры загрузки файла.
type FileUpload struct {
	Filename string
	Purpose  string
	Content  io.Reader
}

// FileCounts — счётчики файлов vector store.
type FileCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// VectorStore — хранилище эмбеддингов.
type VectorStore struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  int64      `json:"created_at"`
	FileCounts FileCounts `json:"file_counts"`
}

// FileBatch — пакет файлов, добавленных в vector store.
type FileBatch struct {
	ID            string     `json:"id"`
	VectorStoreID string     `json:"vector_store_id"`
	Status        string     `json:"status"`
	FileCounts    FileCounts `json:"file_counts"`
}
