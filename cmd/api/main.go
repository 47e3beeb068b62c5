package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"academy/internal/auth"
	"academy/internal/checkin"
	"academy/internal/config"
	"academy/internal/httpmiddleware"
	"academy/internal/metrics"
	"academy/internal/notify"
	"academy/internal/payment"
	"academy/internal/store"
	"academy/internal/student"
	"academy/internal/token"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "production" || env == "prod" {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx, db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	loc := cfg.Location()

	var tokenStore token.Store
	if cfg.TokenBackend == "memory" {
		tokenStore = token.NewMemoryStore()
	} else {
		tokenStore = token.NewRedisStore(redisClient.Client)
	}
	tokens := token.NewService(tokenStore, cfg.TokenSecret, cfg.TokenSlotWidth, cfg.TokenTTLBuffer)

	var q notify.Queue
	if cfg.QueueBackend == "memory" {
		q = notify.NewInMemory(64)
	} else {
		q = notify.NewRedisQueue(redisClient.Client, "academy:notifications")
	}

	checkinRepo := checkin.NewPostgresRepository(db.Client)
	matcher := checkin.NewMatcher(loc, cfg.EarlyWindow)
	recorder := checkin.NewRecorder(checkinRepo, loc, cfg.LateThreshold)
	checkins := checkin.NewService(tokens, checkinRepo, matcher, recorder, q, logger)

	var sessions student.SessionStore
	if cfg.TokenBackend == "memory" {
		sessions = student.NewMemorySessionStore()
	} else {
		sessions = student.NewRedisSessionStore(redisClient.Client)
	}
	students := student.NewService(student.NewPostgresRepository(db.Client), sessions, tokens, cfg.SessionTTL, logger)

	refunds := payment.NewService(payment.NewPostgresRepository(db.Client), logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Student verification flow: name+phone match opens a one-hour session,
	// which is then exchanged for short-lived QR tokens.
	r.POST("/v1/students/verify", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name" binding:"required,max=50"`
			Phone string `json:"phone" binding:"required,max=20"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := students.Verify(c.Request.Context(), req.Name, req.Phone)
		if errors.Is(err, student.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "등록된 학생 정보를 찾을 수 없습니다.",
			})
			return
		}
		if err != nil {
			storageError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"message":       "인증 성공",
			"session_token": res.SessionToken,
			"expires_at":    res.ExpiresAt.Format(time.RFC3339),
			"student": gin.H{
				"id":        res.Student.ID,
				"name":      res.Student.Name,
				"branch_id": res.Student.BranchID,
			},
		})
	})

	r.GET("/v1/students/me", func(c *gin.Context) {
		st, ok := requireSession(c, students, logger)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"student": gin.H{
				"id":        st.ID,
				"name":      st.Name,
				"phone":     st.Phone,
				"branch_id": st.BranchID,
			},
		})
	})

	r.POST("/v1/students/qr-token", func(c *gin.Context) {
		sessionToken := c.GetHeader("X-Student-Token")
		if sessionToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "세션 토큰이 필요합니다."})
			return
		}
		issued, err := students.IssueQR(c.Request.Context(), sessionToken)
		if errors.Is(err, student.ErrSessionExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "세션이 만료되었습니다. 다시 인증해주세요."})
			return
		}
		if errors.Is(err, student.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "학생 정보를 찾을 수 없습니다."})
			return
		}
		if err != nil {
			storageError(c, logger, err)
			return
		}
		metrics.TokensIssued.Inc()
		c.JSON(http.StatusOK, gin.H{
			"token":       issued.Token,
			"expires_in":  issued.ExpiresIn,
			"valid_until": issued.ValidUntil.Format(time.RFC3339),
		})
	})

	r.POST("/v1/students/logout", func(c *gin.Context) {
		students.Logout(c.Request.Context(), c.GetHeader("X-Student-Token"))
		c.JSON(http.StatusOK, gin.H{"message": "로그아웃 되었습니다."})
	})

	// Kiosk registration issues the JWT pair the check-in endpoint requires.
	r.POST("/v1/kiosks/register", func(c *gin.Context) {
		var req struct {
			KioskID  string `json:"kiosk_id" binding:"required"`
			BranchID int64  `json:"branch_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pair, err := auth.Issue(req.KioskID, auth.RoleKiosk, req.BranchID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.BearerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/checkins", auth.RequireRole(auth.RoleKiosk, auth.RoleAdmin), func(c *gin.Context) {
		var req struct {
			Token    string `json:"token" binding:"required"`
			LessonID int64  `json:"lesson_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := checkins.CheckIn(c.Request.Context(), req.Token, req.LessonID)
		if err != nil {
			checkinError(c, logger, res, err)
			return
		}
		if res.Already {
			c.JSON(http.StatusBadRequest, gin.H{
				"success":         false,
				"message":         "이미 출석 처리되었습니다.",
				"student_name":    res.StudentName,
				"lesson":          res.LessonTitle,
				"attendance_time": res.CheckedAt.In(cfg.Location()).Format("15:04"),
			})
			return
		}

		message := "출석 완료"
		if res.Status == checkin.AttendanceLate {
			message = "지각 처리됨"
		}
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"message":         message,
			"student_name":    res.StudentName,
			"lesson":          res.LessonTitle,
			"status":          res.Status,
			"attendance_time": res.CheckedAt.In(cfg.Location()).Format("15:04"),
		})
	})

	adminGroup := authGroup.Group("", auth.RequireRole(auth.RoleAdmin))

	adminGroup.GET("/refunds", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		quotes, err := refunds.Candidates(c.Request.Context(), claims.BranchID)
		if err != nil {
			storageError(c, logger, err)
			return
		}
		out := make([]gin.H, 0, len(quotes))
		for _, q := range quotes {
			out = append(out, refundJSON(q))
		}
		c.JSON(http.StatusOK, gin.H{"refund_candidates": out})
	})

	adminGroup.POST("/refunds/calculate", func(c *gin.Context) {
		var req struct {
			PaymentID string `json:"payment_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		quote, err := refunds.Quote(c.Request.Context(), req.PaymentID)
		if err != nil {
			refundError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, refundJSON(quote))
	})

	adminGroup.POST("/refunds/:paymentID", func(c *gin.Context) {
		var req struct {
			Amount int64  `json:"amount" binding:"required"`
			Notes  string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		refund, err := refunds.Process(c.Request.Context(), c.Param("paymentID"), req.Amount, req.Notes)
		if err != nil {
			refundError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"refund": gin.H{
				"id":          refund.ID,
				"amount":      refund.Amount,
				"refunded_at": refund.RefundedAt.Format("2006-01-02"),
			},
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// requireSession resolves X-Student-Token or writes the failure response.
func requireSession(c *gin.Context, students *student.Service, logger *zap.Logger) (student.Student, bool) {
	sessionToken := c.GetHeader("X-Student-Token")
	if sessionToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "세션 토큰이 필요합니다."})
		return student.Student{}, false
	}
	st, err := students.Me(c.Request.Context(), sessionToken)
	if errors.Is(err, student.ErrSessionExpired) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "세션이 만료되었습니다. 다시 인증해주세요."})
		return student.Student{}, false
	}
	if errors.Is(err, student.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "학생 정보를 찾을 수 없습니다."})
		return student.Student{}, false
	}
	if err != nil {
		storageError(c, logger, err)
		return student.Student{}, false
	}
	return st, true
}

// checkinError maps pipeline failures to precise kiosk-facing responses, so
// the UI can tell "rescan the QR" apart from "no class today".
func checkinError(c *gin.Context, logger *zap.Logger, res checkin.Result, err error) {
	switch {
	case errors.Is(err, token.ErrTokenNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "유효하지 않은 QR 코드입니다.",
		})
	case errors.Is(err, token.ErrTokenExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "만료된 QR 코드입니다. 다시 스캔해주세요.",
		})
	case errors.Is(err, checkin.ErrNoMatchingSession):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":      false,
			"message":      "오늘 예정된 수업이 없습니다.",
			"student_name": res.StudentName,
		})
	case errors.Is(err, checkin.ErrScheduleConflict):
		c.JSON(http.StatusConflict, gin.H{
			"success":      false,
			"message":      "수업 일정이 겹칩니다. 관리자에게 문의해주세요.",
			"student_name": res.StudentName,
		})
	default:
		storageError(c, logger, err)
	}
}

func refundError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, payment.ErrNotRefundable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment not refundable"})
	case errors.Is(err, payment.ErrRefundExists):
		c.JSON(http.StatusConflict, gin.H{"error": "refund already processed"})
	default:
		storageError(c, logger, err)
	}
}

func storageError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Error("storage failure", zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
}

func refundJSON(q payment.Quote) gin.H {
	return gin.H{
		"payment_id":        q.Payment.ID,
		"enrollment_id":     q.Payment.EnrollmentID,
		"amount":            q.Payment.Amount,
		"total_sessions":    q.TotalSessions,
		"attended_sessions": q.Attended,
		"calculated_refund": q.Amount,
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Student-Token")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
