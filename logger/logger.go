package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota // 调试信息（最详细）
	INFO                  // 一般信息（正常运行信息）
	WARN                  // 警告信息（需要注意但不影响运行）
	ERROR                 // 错误信息（需要关注的问题）
	FATAL                 // 致命错误（程序无法继续）
)

var (
	globalLevel LogLevel = INFO
	mu          sync.RWMutex

	logDir = "logs" // 日志文件夹

	// 应用日志文件与 Web 访问日志文件（按日期轮转）
	appFile = &rollingFile{prefix: "app-edgerisk"}
	webFile = &rollingFile{prefix: "web-gin"}

	// 时区相关
	globalLocation *time.Location = time.Local
	locationMu     sync.RWMutex

	// SQLite 日志存储（通过函数指针避免循环依赖）
	logStorageWriter func(level, message string)
	logStorageMu     sync.RWMutex
)

// rollingFile 按日期轮转的日志文件
type rollingFile struct {
	prefix      string
	file        *os.File
	logger      *log.Logger
	currentDate string
	mu          sync.Mutex
}

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel 解析日志级别字符串
func ParseLogLevel(level string) LogLevel {
	level = strings.ToUpper(strings.TrimSpace(level))
	switch level {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO // 默认INFO级别
	}
}

// SetLevel 设置全局日志级别
func SetLevel(level LogLevel) {
	mu.Lock()
	globalLevel = level
	mu.Unlock()

	// 非 DEBUG 级别时关闭应用文件日志
	if level != DEBUG {
		appFile.close()
	}
}

// GetLevel 获取全局日志级别
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return globalLevel
}

// SetLocation 设置全局日志时区
func SetLocation(loc *time.Location) {
	locationMu.Lock()
	defer locationMu.Unlock()
	globalLocation = loc
}

func location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return globalLocation
}

// InitLogStorage 初始化日志存储（通过函数指针避免循环依赖）
func InitLogStorage(writer func(level, message string)) {
	logStorageMu.Lock()
	defer logStorageMu.Unlock()
	logStorageWriter = writer
}

// rotate 确保当前日期的日志文件已打开（调用方必须持有 rf.mu）
func (rf *rollingFile) rotate() {
	today := time.Now().In(location()).Format("2006-01-02")
	if rf.logger != nil && rf.currentDate == today {
		return
	}

	if rf.file != nil {
		rf.file.Close()
		rf.file = nil
		rf.logger = nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return
	}

	name := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", rf.prefix, today))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}

	rf.file = file
	rf.currentDate = today
	// 写入时自行附加时间戳，标准 flags 置空
	rf.logger = log.New(file, "", 0)
}

// write 写入一行（带时间戳）
func (rf *rollingFile) write(message string) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	rf.rotate()
	if rf.logger != nil {
		rf.logger.Printf("%s %s", time.Now().In(location()).Format("2006/01/02 15:04:05"), message)
	}
}

func (rf *rollingFile) close() {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file != nil {
		rf.file.Close()
		rf.file = nil
		rf.logger = nil
		rf.currentDate = ""
	}
}

// WriteWebLog 写入 Web 访问日志（供 Gin 中间件使用）
func WriteWebLog(message string) {
	webFile.write(message)
}

// Close 关闭文件日志（程序退出时调用）
func Close() {
	appFile.close()
	webFile.close()
	logStorageMu.Lock()
	defer logStorageMu.Unlock()
	logStorageWriter = nil
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// logf 内部日志输出函数
func logf(level LogLevel, format string, args ...interface{}) {
	if !shouldLog(level) {
		return
	}
	prefix := fmt.Sprintf("[%s] ", level.String())
	message := fmt.Sprintf(prefix+format, args...)

	// 输出到控制台（标准输出）
	log.Printf(prefix+format, args...)

	// DEBUG 级别时同时写入文件
	if GetLevel() == DEBUG {
		appFile.write(message)
	}

	// 写入 SQLite 数据库（异步，不阻塞）
	logStorageMu.RLock()
	writer := logStorageWriter
	logStorageMu.RUnlock()

	if writer != nil {
		go func() {
			defer func() {
				// 恢复 panic，避免日志写入影响主程序
				_ = recover()
			}()
			writer(level.String(), message)
		}()
	}
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Info 输出一般信息日志
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(format string, args ...interface{}) {
	logf(FATAL, format, args...)
	os.Exit(1)
}
