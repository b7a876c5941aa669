package response

import "github.com/gofiber/fiber/v2"

// Error codes
const (
	CodeUpgradeRequired = "UPGRADE_REQUIRED"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func UpgradeRequired(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUpgradeRequired, CodeUpgradeRequired, "WebSocket upgrade required", nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

// ErrorHandler renders errors returned by fiber handlers in the
// {error:{code,message}} shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = CodeNotFound
	case fiber.StatusUpgradeRequired:
		errCode = CodeUpgradeRequired
	case fiber.StatusTooManyRequests:
		errCode = CodeRateLimited
	}
	return Error(c, code, errCode, message, nil)
}
