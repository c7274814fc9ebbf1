// internal/tests/auth_test.go
package tests

import (
	"net/http"

	"github.com/javajoker/substance-compliance/internal/models"
)

func (suite *APITestSuite) TestUserLogin() {
	w := suite.request(http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"login":    "officer@example.com",
		"password": testPassword,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	data := suite.data(w)
	token, ok := data["token"].(string)
	suite.Require().True(ok)
	suite.NotEmpty(data["refresh_token"])
	suite.Equal("Bearer", data["token_type"])

	w = suite.request(http.MethodGet, "/api/v1/auth/me", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	user := suite.data(w)["user"].(map[string]interface{})
	suite.Equal("officer", user["username"])
	suite.Equal(string(models.UserRoleComplianceOfficer), user["role"])
	suite.NotContains(w.Body.String(), "password")
}

func (suite *APITestSuite) TestLoginRejectsWrongPassword() {
	w := suite.request(http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"login":    "officer",
		"password": "Wrong-pass1",
	})
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal("UNAUTHORIZED", suite.errorCode(w))
}

func (suite *APITestSuite) TestLoginRejectsSuspendedUser() {
	suite.Require().NoError(suite.db.Model(suite.officer).Update("status", models.UserStatusSuspended).Error)

	w := suite.request(http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"login":    "officer",
		"password": testPassword,
	})
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *APITestSuite) TestRefreshToken() {
	w := suite.request(http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"login":    "responsible",
		"password": testPassword,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	refresh := suite.data(w)["refresh_token"].(string)

	w = suite.request(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{
		"refresh_token": refresh,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.NotEmpty(suite.data(w)["token"])

	w = suite.request(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{
		"refresh_token": "not-a-token",
	})
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *APITestSuite) TestProtectedRoutesRequireToken() {
	w := suite.request(http.MethodGet, "/api/v1/transactions", "", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w = suite.request(http.MethodGet, "/api/v1/transactions", "garbage", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *APITestSuite) TestAdminCreatesUser() {
	body := map[string]interface{}{
		"username": "new_officer",
		"email":    "New.Officer@Example.com",
		"password": "Another1!pass",
		"role":     "compliance_officer",
	}

	w := suite.request(http.MethodPost, "/api/v1/admin/users", suite.tokenFor(suite.officer), body)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/admin/users", suite.tokenFor(suite.admin), body)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	user := suite.data(w)["user"].(map[string]interface{})
	suite.Equal("new.officer@example.com", user["email"])

	w = suite.request(http.MethodGet, "/api/v1/admin/users?role=compliance_officer", suite.tokenFor(suite.admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("2", w.Header().Get("X-Total-Count"))
}

func (suite *APITestSuite) TestAdminUserStatus() {
	adminToken := suite.tokenFor(suite.admin)

	w := suite.request(http.MethodPut, "/api/v1/admin/users/"+suite.admin.ID.String()+"/status", adminToken,
		map[string]interface{}{"status": "suspended"})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("INVALID_OPERATION", suite.errorCode(w))

	w = suite.request(http.MethodPut, "/api/v1/admin/users/"+suite.officer.ID.String()+"/status", adminToken,
		map[string]interface{}{"status": "suspended", "reason": "Left the company"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("User account suspended", suite.data(w)["message"])

	var reloaded models.User
	suite.Require().NoError(suite.db.First(&reloaded, "id = ?", suite.officer.ID).Error)
	suite.Equal(models.UserStatusSuspended, reloaded.Status)
}
