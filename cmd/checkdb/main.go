// Command checkdb gibt den Inhalt der Personen-, Artikel- und Verknüpfungstabellen aus.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"news-faces/config"
	"news-faces/models"
	"news-faces/storage"
)

// DBConfig enthält nur die Datenbank-Variablen; API-Schlüssel des Dienstes werden nicht gebraucht.
type DBConfig struct {
	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"newsfaces"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./newsfaces.db"`
}

func loadDBConfig() (*config.Config, error) {
	_ = godotenv.Load()
	var c DBConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &config.Config{
		DBDriver:   c.DBDriver,
		DBHost:     c.DBHost,
		DBPort:     c.DBPort,
		DBUser:     c.DBUser,
		DBPassword: c.DBPassword,
		DBName:     c.DBName,
		SQLitePath: c.SQLitePath,
	}, nil
}

func main() {
	limit := flag.Int("limit", 20, "maximale Zeilen pro Tabelle")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg, err := loadDBConfig()
	if err != nil {
		logger.Fatal("Config load error", zap.Error(err))
	}
	db, err := storage.OpenDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := report(os.Stdout, db, *limit); err != nil {
		logger.Fatal("Abfrage fehlgeschlagen", zap.Error(err))
	}
}

func report(out io.Writer, db *gorm.DB, limit int) error {
	var nPeople, nArticles, nLinks int64
	if err := db.Model(&models.Person{}).Count(&nPeople).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Article{}).Count(&nArticles).Error; err != nil {
		return err
	}
	if err := db.Model(&models.PersonArticle{}).Count(&nLinks).Error; err != nil {
		return err
	}
	fmt.Fprintf(out, "people=%d articles=%d links=%d\n\n", nPeople, nArticles, nLinks)

	var people []models.Person
	if err := db.Order("id").Limit(limit).Find(&people).Error; err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKEY\tIMAGE")
	for _, p := range people {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.NameKey, p.ImageURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	var articles []models.Article
	if err := db.Order("id").Limit(limit).Find(&articles).Error; err != nil {
		return err
	}
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPUBLISHED\tSOURCE\tTITLE\tLINK")
	for _, a := range articles {
		published := "-"
		if a.PublishedAt != nil {
			published = a.PublishedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.ID, published, a.SourceName, a.Title, a.Link)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	var links []models.PersonArticle
	if err := db.Order("id").Limit(limit).Find(&links).Error; err != nil {
		return err
	}
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPERSON\tARTICLE\tPRIMARY")
	for _, l := range links {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%t\n", l.ID, l.PersonID, l.ArticleID, l.IsPrimary)
	}
	return tw.Flush()
}
