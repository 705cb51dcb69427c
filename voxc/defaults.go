package voxc

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName = "voxc"

	DefaultDatabaseType = "libsql"
	DefaultJournal      = "libsql"

	// DefaultSessionID names the session used when a caller does not ask for one.
	DefaultSessionID = "default"

	// DefaultSlotName is the file an out-of-process viewer reads the current page from.
	DefaultSlotName = "output.html"

	DefaultLLMBaseURL = "https://api.groq.com/openai/v1"
	DefaultLLMModel   = "llama-3.1-70b-versatile"

	DefaultServerAddr = ":8000"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir     = filepath.Join(".", "."+DefaultAppName)
	DefaultOutputDir   = filepath.Join(".", "uploads")
	DefaultUploadDir   = filepath.Join(".", "uploads")
	DefaultDatabaseDir = filepath.Join(DefaultDataDir, "db")
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, DefaultAppName+".db")
	DefaultBoltPath    = filepath.Join(DefaultDataDir, "journal.bolt")

	DefaultAllowedExtensions = []string{".wav", ".mp3", ".ogg", ".ulaw", ".alaw"}
	DefaultAllowedOrigins    = []string{"http://localhost:3000"}
)

// DefaultSystemPrompt is pinned as the first turn of every conversation.
const DefaultSystemPrompt = "You are a helpful assistant and a pro in creating HTML codes with Tailwind. " +
	"If the color requested by the user is not defined by tailwind you have to define its class. " +
	"You only need to generate the code, which will be displayed on a webpage. " +
	"Insert the html code in the 'html' json key. " +
	"If any other prompt is given, just reply 'out of domain'. " +
	"The user will provide instructions for customizing the generated page. " +
	"Add javascript where necessary. " +
	"You have to generate complete html code"

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	return "."
}
