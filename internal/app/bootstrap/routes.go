package bootstrap

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// routeGroup registers one feature's routes on the engine.
type routeGroup struct {
	name     string
	register func(r *gin.Engine) error
}

// registerGroups registers groups in order. gin reports route conflicts by
// panicking, so a panic counts as a failure of that group.
func registerGroups(r *gin.Engine, groups []routeGroup, mode Registration, log *zap.Logger) error {
	for _, g := range groups {
		err := safeRegister(r, g)
		if err == nil {
			log.Debug("route group registered", zap.String("group", g.name))
			continue
		}
		if mode == RegistrationStrict {
			return fmt.Errorf("register %s routes: %w", g.name, err)
		}
		log.Error("route group skipped", zap.String("group", g.name), zap.Error(err))
	}
	return nil
}

func safeRegister(r *gin.Engine, g routeGroup) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return g.register(r)
}
